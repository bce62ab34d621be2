// Package stats accumulates per instrument account values from fills.
package stats

import (
	"cmp"
	"os"
	"slices"
	"sync"

	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Snapshot is the state of one instrument at a point in time.
type Snapshot struct {
	Venue             string `yaml:"venue" json:"venue"`
	Symbol            string `yaml:"symbol" json:"symbol"`
	types.StateValues `yaml:",inline"`
}

// Tracker keeps the StateValues of every (venue, symbol) pair that traded.
type Tracker struct {
	values map[types.InstrumentKey]types.StateValues
	mu     sync.RWMutex
	logger *logger.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(log *logger.Logger) *Tracker {
	return &Tracker{
		values: make(map[types.InstrumentKey]types.StateValues),
		mu:     sync.RWMutex{},
		logger: log,
	}
}

// Record applies one fill of an order on the given side and returns the updated values.
func (t *Tracker) Record(key types.InstrumentKey, side types.Side, fill types.Fill) types.StateValues {
	t.mu.Lock()
	defer t.mu.Unlock()

	values, ok := t.values[key]
	if !ok {
		values = types.NewStateValues()
	}

	value := fill.Value()

	switch side {
	case types.SideBuy:
		values.Position = values.Position.Add(fill.Quantity)
		values.Balance = values.Balance.Sub(value)
	case types.SideSell:
		values.Position = values.Position.Sub(fill.Quantity)
		values.Balance = values.Balance.Add(value)
	}

	values.Balance = values.Balance.Sub(fill.Fee)
	values.Fee = values.Fee.Add(fill.Fee)
	values.TradingVolume = values.TradingVolume.Add(fill.Quantity)
	values.TradingValue = values.TradingValue.Add(value)
	values.NumTrades++

	t.values[key] = values

	t.logger.Debug("Fill recorded",
		zap.String("instrument", key.String()),
		zap.String("side", string(side)),
		zap.String("quantity", fill.Quantity.String()),
		zap.String("price", fill.Price.String()),
		zap.String("position", values.Position.String()),
	)

	return values
}

// Apply records the fill carried by a fill event. Other events are ignored and return false.
func (t *Tracker) Apply(event types.LiveEvent) (types.StateValues, bool) {
	if event.Fill.IsNone() || event.Order.IsNone() {
		return types.StateValues{}, false
	}

	key := types.InstrumentKey{Venue: event.Venue, Symbol: event.Symbol}

	return t.Record(key, event.Order.Unwrap().Side, event.Fill.Unwrap()), true
}

// Get returns the values of an instrument, zeroed when it never traded.
func (t *Tracker) Get(key types.InstrumentKey) types.StateValues {
	t.mu.RLock()
	defer t.mu.RUnlock()

	values, ok := t.values[key]
	if !ok {
		return types.NewStateValues()
	}

	return values
}

// Snapshots returns every tracked instrument ordered by venue and symbol.
func (t *Tracker) Snapshots() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(t.values))
	for key, values := range t.values {
		snapshots = append(snapshots, Snapshot{Venue: key.Venue, Symbol: key.Symbol, StateValues: values})
	}

	slices.SortFunc(snapshots, func(a, b Snapshot) int {
		if c := cmp.Compare(a.Venue, b.Venue); c != 0 {
			return c
		}

		return cmp.Compare(a.Symbol, b.Symbol)
	})

	return snapshots
}

// Reset forgets every instrument.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.values = make(map[types.InstrumentKey]types.StateValues)
}

// WriteYAML writes the current snapshots to path.
func (t *Tracker) WriteYAML(path string) error {
	if path == "" {
		return nil
	}

	data, err := yaml.Marshal(t.Snapshots())
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to marshal state values to YAML", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to write state values", err)
	}

	return nil
}

// ReadYAML reads snapshots written by WriteYAML.
func ReadYAML(path string) ([]Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to read state values", err)
	}

	var snapshots []Snapshot
	if err := yaml.Unmarshal(data, &snapshots); err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to unmarshal state values", err)
	}

	return snapshots, nil
}
