// Package lifecycle is the bot state machine: user commands (start, pause, stop,
// reset) and tick outcomes (success, failure) over a bot's status and consecutive
// error count.
package lifecycle

import (
	"errors"
	"fmt"

	"paper-trade-bot-go/internal/models"
)

// DefaultErrorThreshold is the number of consecutive tick failures that trips a bot
// into the error status.
const DefaultErrorThreshold = 5

var ErrInvalidTransition = errors.New("invalid bot state transition")

// Event drives a transition.
type Event string

const (
	Start         Event = "start"
	Pause         Event = "pause"
	Stop          Event = "stop"
	Reset         Event = "reset"
	TickSucceeded Event = "tick_succeeded"
	TickFailed    Event = "tick_failed"
)

// State is the part of a bot the machine owns.
type State struct {
	Status       models.BotStatus
	ErrorCount   int
	ErrorMessage string
}

// Of extracts the state of a bot.
func Of(bot *models.Bot) State {
	return State{Status: bot.Status, ErrorCount: bot.ErrorCount, ErrorMessage: bot.ErrorMessage}
}

// Into writes s back onto bot.
func (s State) Into(bot *models.Bot) {
	bot.Status = s.Status
	bot.ErrorCount = s.ErrorCount
	bot.ErrorMessage = s.ErrorMessage
}

type transitionFunc func(s State, threshold int) State

type key struct {
	from  models.BotStatus
	event Event
}

func to(status models.BotStatus) transitionFunc {
	return func(s State, _ int) State {
		s.Status = status
		return s
	}
}

func clearErrors(status models.BotStatus) transitionFunc {
	return func(State, int) State {
		return State{Status: status}
	}
}

func countFailure(s State, threshold int) State {
	s.ErrorCount++
	if s.ErrorCount >= threshold {
		s.Status = models.StatusError
	}
	return s
}

var transitions = map[key]transitionFunc{
	{models.StatusDraft, Start}:          to(models.StatusActive),
	{models.StatusPaused, Start}:         to(models.StatusActive),
	{models.StatusActive, Pause}:         to(models.StatusPaused),
	{models.StatusActive, Stop}:          to(models.StatusStopped),
	{models.StatusPaused, Stop}:          to(models.StatusStopped),
	{models.StatusError, Reset}:          clearErrors(models.StatusPaused),
	{models.StatusActive, TickSucceeded}: clearErrors(models.StatusActive),
	{models.StatusActive, TickFailed}:    countFailure,
}

// Apply returns the state after event. A threshold below 1 uses DefaultErrorThreshold.
// The input state is never modified.
func Apply(s State, event Event, threshold int) (State, error) {
	fn, ok := transitions[key{s.Status, event}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s bot", ErrInvalidTransition, event, s.Status)
	}
	if threshold < 1 {
		threshold = DefaultErrorThreshold
	}
	return fn(s, threshold), nil
}

// Failed applies TickFailed and records msg as the bot's error message.
func Failed(s State, msg string, threshold int) (State, error) {
	next, err := Apply(s, TickFailed, threshold)
	if err != nil {
		return s, err
	}
	next.ErrorMessage = msg
	return next, nil
}

// Tradable reports whether ticks may run for a bot in status.
func Tradable(status models.BotStatus) bool {
	return status == models.StatusActive
}
