// Package json parses signals posted in a structured JSON format, used by
// feeds that don't need free-text extraction.
package json

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pumpmybags/pmb/pkg/signal"
)

type Parser struct{}

type jsonSignal struct {
	Coin      string   `json:"coin"`
	Position  string   `json:"position"`
	Entry     string   `json:"entry"`
	Targets   []string `json:"targets"`
	Stop      string   `json:"stop"`
	Timeframe string   `json:"timeframe"`
	Risk      string   `json:"risk"`
}

func (p Parser) Parse(text string) (*signal.Signal, error) {
	var js jsonSignal
	if err := json.Unmarshal([]byte(text), &js); err != nil {
		return nil, fmt.Errorf("json: couldn't parse signal (%s): %w", text, err)
	}
	if js.Coin == "" {
		return nil, fmt.Errorf("json: missing coin (%s)", text)
	}
	if len(js.Targets) == 0 {
		return nil, fmt.Errorf("json: missing targets (%s)", text)
	}
	if js.Entry != "" {
		if _, ok := signal.ParsePrice(js.Entry); !ok {
			return nil, fmt.Errorf("json: couldn't parse entry price (%s)", js.Entry)
		}
	}
	if js.Stop != "" {
		if _, ok := signal.ParsePrice(js.Stop); !ok {
			return nil, fmt.Errorf("json: couldn't parse stop price (%s)", js.Stop)
		}
	}
	targets := make(map[int]string, len(js.Targets))
	for i, target := range js.Targets {
		if _, ok := signal.ParsePrice(target); !ok {
			return nil, fmt.Errorf("json: couldn't parse target %d price (%s)", i+1, target)
		}
		targets[i+1] = target
	}
	s := &signal.Signal{
		ID:                uuid.New().String(),
		Text:              text,
		Coin:              js.Coin,
		Position:          js.Position,
		LimitOrder:        js.Entry,
		TakeProfitTargets: targets,
		StopLoss:          js.Stop,
		Timeframe:         js.Timeframe,
		Risk:              js.Risk,
		Status:            signal.StatusPending,
	}
	s.SyncTakeProfit()
	return s, nil
}
