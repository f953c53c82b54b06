package ingest

import (
	"github.com/fieldaid/fieldaid/internal/parser"
	"github.com/fieldaid/fieldaid/pkg/types"
)

// seedSource names the synthetic source attached to the built-in entries.
const seedSource = "builtin-seed"

// seedEntries returns the built-in critical-care set used when no configured
// source yields a single entry. It is deliberately small: enough to make the
// engine useful in a degraded install, not a substitute for real documents.
func seedEntries() []*types.KnowledgeEntry {
	seeds := []struct {
		title    string
		text     string
		category string
	}{
		{
			title: "Severe Bleeding Control",
			text: "Apply firm direct pressure on the wound with a clean cloth or bandage. " +
				"Do not remove soaked dressings; add more layers on top. If bleeding from a limb " +
				"does not stop under pressure, apply a tourniquet two to three inches above the " +
				"wound and note the time it was applied. Keep the injured person warm and still.",
			category: "first-aid",
		},
		{
			title: "CPR for Adults",
			text: "Check responsiveness and breathing. If the person is not breathing normally, " +
				"start chest compressions: push hard and fast in the center of the chest, at least " +
				"two inches deep at a rate of 100 to 120 compressions per minute. After every 30 " +
				"compressions give two rescue breaths if trained. Continue until help arrives or " +
				"the person starts breathing.",
			category: "first-aid",
		},
		{
			title: "Choking Response",
			text: "If the person can cough or speak, encourage coughing. If they cannot breathe, " +
				"give five sharp back blows between the shoulder blades with the heel of your hand, " +
				"then five abdominal thrusts just above the navel. Alternate back blows and thrusts " +
				"until the object clears or the person becomes unresponsive, then start CPR.",
			category: "first-aid",
		},
		{
			title: "Treating Shock",
			text: "Lay the person down on their back and elevate the legs about twelve inches " +
				"unless a head, neck, or leg injury is suspected. Keep them warm with a blanket " +
				"or coat. Do not give food or drink. Loosen tight clothing and monitor breathing " +
				"until help arrives.",
			category: "first-aid",
		},
		{
			title: "Water Purification",
			text: "Bring water to a rolling boil for at least one minute, or three minutes above " +
				"6500 feet of elevation. If boiling is not possible, filter cloudy water through " +
				"cloth and add two drops of unscented household bleach per liter, then wait 30 " +
				"minutes before drinking.",
			category: "survival",
		},
		{
			title: "Hypothermia Care",
			text: "Move the person out of wind and wet conditions. Remove wet clothing and wrap " +
				"them in dry blankets, covering the head and neck. Warm the core first with warm " +
				"compresses to the chest and groin. Give warm sweet drinks only if the person is " +
				"alert and able to swallow. Do not rub the skin or apply direct heat.",
			category: "survival",
		},
	}

	entries := make([]*types.KnowledgeEntry, 0, len(seeds))
	for _, s := range seeds {
		entries = append(entries, &types.KnowledgeEntry{
			Title:         s.title,
			Text:          s.text,
			Category:      s.category,
			Priority:      1,
			Keywords:      parser.ExtractKeywords(s.text),
			Source:        seedSource,
			LanguageCode:  "en",
			FieldSuitable: true,
		})
	}
	return entries
}
