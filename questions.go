/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Question selection modes.
const (
	questionSingle   = "single"
	questionMultiple = "multiple"
)

// Answer is one selectable option of a question.
type Answer struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Type    string   `json:"type"`
	Answers []Answer `json:"answers"`
}

//go:embed data/questions.json
var defaultQuestionBank []byte

// loadQuestions returns the question bank: the embedded default, or the
// JSON file at path when one is configured.
func loadQuestions(path string) ([]Question, error) {
	data := defaultQuestionBank
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading question bank: %w", err)
		}
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}

	if err := validateQuestions(questions); err != nil {
		return nil, err
	}

	return questions, nil
}

func validateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return errors.New("question bank is empty")
	}

	for _, q := range questions {
		if q.Type != questionSingle && q.Type != questionMultiple {
			return fmt.Errorf("question %q: unknown type %q", q.ID, q.Type)
		}

		correct := 0
		for _, a := range q.Answers {
			if a.IsCorrect {
				correct++
			}
		}

		if correct == 0 {
			return fmt.Errorf("question %q has no correct answer", q.ID)
		}
		if q.Type == questionSingle && correct > 1 {
			return fmt.Errorf("question %q is single-choice but has %d correct answers", q.ID, correct)
		}
	}

	return nil
}

func (q Question) correctAnswerIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, a := range q.Answers {
		if a.IsCorrect {
			ids[a.ID] = true
		}
	}
	return ids
}

// checkAnswer reports whether the selection answers q correctly.
// Single-choice needs the lone selection to be a correct answer;
// multiple-choice needs the selection to match the correct set exactly.
func (q Question) checkAnswer(selected []string) bool {
	correct := q.correctAnswerIDs()

	if q.Type == questionSingle {
		return len(selected) > 0 && correct[selected[0]]
	}

	if len(selected) != len(correct) {
		return false
	}
	for _, id := range selected {
		if !correct[id] {
			return false
		}
	}
	return true
}
