package json

import (
	"reflect"
	"testing"

	"github.com/pumpmybags/pmb/pkg/signal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		want    *signal.Signal
		wantErr bool
	}{
		{
			name: "valid signal",
			msg: `{
	"coin": "BTC",
	"position": "Long",
	"entry": "85k",
	"targets": [
		"90k",
		"95k"
	],
	"stop": "80k",
	"timeframe": "MID",
	"risk": "MEDIUM"
}`,
			want: &signal.Signal{
				Coin:       "BTC",
				Position:   signal.PositionLong,
				LimitOrder: "85k",
				TakeProfit: "90k",
				TakeProfitTargets: map[int]string{
					1: "90k",
					2: "95k",
				},
				StopLoss:  "80k",
				Timeframe: signal.TimeframeMid,
				Risk:      signal.RiskMedium,
				Status:    signal.StatusPending,
			},
		},
		{
			name:    "missing targets",
			msg:     `{"coin": "BTC", "entry": "85k"}`,
			wantErr: true,
		},
		{
			name:    "malformed target price",
			msg:     `{"coin": "BTC", "targets": ["ninety"]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			msg:     "Long BTC at 85k",
			wantErr: true,
		},
	}

	parser := Parser{}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.Parse(tt.msg)
			if err != nil {
				if tt.wantErr {
					return
				}
				t.Fatal(err)
			}
			if tt.wantErr {
				t.Fatal("want error")
			}
			if got.ID == "" {
				t.Error("want a generated id")
			}
			got.ID = ""
			got.Text = ""
			if !reflect.DeepEqual(*got, *tt.want) {
				t.Errorf("got: %v, want: %v", got, tt.want)
			}
		})
	}
}
