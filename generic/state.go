package generic

import "strings"

// =============================================================================
// STATE - Lifecycle of commission and rebate records
// =============================================================================

// State is the lifecycle state of a CommissionRecord or RebateRecord:
//
//	Pendiente -> Calculado/Calculada -> Pagado/Pagada
//
// Both spellings of the last two states exist in stored data. Writes keep
// whatever spelling the caller sent; reads always match both.
type State string

const (
	StatePending     State = "Pendiente"
	StateCalculated  State = "Calculado"
	StateCalculatedF State = "Calculada"
	StatePaid        State = "Pagado"
	StatePaidF       State = "Pagada"
)

var stateSynonyms = map[State][]State{
	StatePending:     {StatePending},
	StateCalculated:  {StateCalculated, StateCalculatedF},
	StateCalculatedF: {StateCalculated, StateCalculatedF},
	StatePaid:        {StatePaid, StatePaidF},
	StatePaidF:       {StatePaid, StatePaidF},
}

// Synonyms returns every stored spelling that means the same state.
// Unknown states match only themselves.
func (s State) Synonyms() []State {
	if syn, ok := stateSynonyms[s.canonical()]; ok {
		return syn
	}
	return []State{s}
}

// SynonymArgs is Synonyms as query arguments.
func (s State) SynonymArgs() []any {
	syn := s.Synonyms()
	out := make([]any, len(syn))
	for i, v := range syn {
		out[i] = string(v)
	}
	return out
}

// Is reports whether s and other are the same state under legacy spellings.
func (s State) Is(other State) bool {
	for _, v := range s.Synonyms() {
		if v == other.canonical() {
			return true
		}
	}
	return false
}

// IsPaid returns true for Pagado/Pagada.
func (s State) IsPaid() bool { return s.Is(StatePaid) }

// IsPending returns true for Pendiente or an empty state.
func (s State) IsPending() bool { return s == "" || s.Is(StatePending) }

// canonical fixes letter case only ("pagada" -> "Pagada"); it never changes
// the spelling itself.
func (s State) canonical() State {
	for k := range stateSynonyms {
		if strings.EqualFold(string(k), string(s)) {
			return k
		}
	}
	return s
}
