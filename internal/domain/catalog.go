package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DefaultCatalogID names the built-in dyslexia screening quiz.
const DefaultCatalogID = "dyslexia-screening"

var catalogValidator = validator.New()

// ValidateCatalog checks the struct-level rules and every task invariant.
func ValidateCatalog(c Catalog) error {
	if err := catalogValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidCatalog, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	for _, task := range c.Tasks {
		if err := task.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultCatalog returns the built-in screening content: eleven checklist statements then four tasks.
func DefaultCatalog() Catalog {
	return Catalog{
		ID: DefaultCatalogID,
		Checklist: []string{
			"Has difficulty reading unfamiliar words and often guesses at them.",
			"Pauses, repeats or makes frequent mistakes when reading aloud.",
			"Mispronounces certain words (e.g., says 'amunul' for animal).",
			"Struggles to understand what he or she has read.",
			"Doesn't like to read for fun.",
			"Makes frequent spelling errors.",
			"Has messy handwriting.",
			"Has trouble with punctuation and capitalization.",
			"Resists writing tasks.",
			"Becomes frustrated or angry when doing school work.",
			"Has a blood relative with a history of reading, spelling, or writing problems.",
		},
		Tasks: []TaskItem{
			{
				Category:       CategoryPhonological,
				Prompt:         "Select the word that matches the sound 'blib'.",
				Choices:        []string{"blib", "blid", "blob", "blip"},
				ExpectedAnswer: "blib",
			},
			{
				Category:       CategorySurface,
				Prompt:         "Which of these is spelled correctly for the word pronounced 'yot'?",
				Choices:        []string{"yot", "yacht", "yaught", "yach"},
				ExpectedAnswer: "yacht",
			},
			{
				Category: CategoryVisual,
				Prompt:   "Read the scrambled text: 'Tihs snetecne is srcmabled.'",
				Choices: []string{
					"This sentence is scrambled.",
					"This sentence is scrumbled.",
					"This sentance is scrambled.",
					"This sentence is scrembled.",
				},
				ExpectedAnswer: "This sentence is scrambled.",
			},
			{
				Category:       CategoryAuditory,
				Prompt:         "Listen to the numbers and repeat them: '7, 4, 2'.",
				ExpectedAnswer: "7 4 2",
				VoiceOnly:      true,
			},
		},
	}
}
