package domain

import "fmt"

type Estado string

const (
	EstadoSolicitado Estado = "solicitado"
	EstadoTramitado  Estado = "tramitado"
	EstadoConfirmado Estado = "confirmado"
	EstadoRechazado  Estado = "rechazado"
	EstadoRealizado  Estado = "realizado"
)

type Action string

const (
	ActionProcess  Action = "process"
	ActionConfirm  Action = "confirm"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
)

// transitions is the whole legal graph: action -> (from, to).
var transitions = map[Action]struct{ From, To Estado }{
	ActionProcess:  {EstadoSolicitado, EstadoTramitado},
	ActionConfirm:  {EstadoTramitado, EstadoConfirmado},
	ActionReject:   {EstadoTramitado, EstadoRechazado},
	ActionComplete: {EstadoConfirmado, EstadoRealizado},
}

var rank = map[Estado]int{
	EstadoSolicitado: 0,
	EstadoTramitado:  1,
	EstadoConfirmado: 2,
	EstadoRechazado:  2,
	EstadoRealizado:  3,
}

func ParseEstado(s string) (Estado, error) {
	e := Estado(s)
	if _, ok := rank[e]; !ok {
		return "", fmt.Errorf("unknown estado %q", s)
	}
	return e, nil
}

func (e Estado) Valid() bool {
	_, ok := rank[e]
	return ok
}

// Terminal reports whether no action can leave this state.
func (e Estado) Terminal() bool {
	return e == EstadoRechazado || e == EstadoRealizado
}

// Source and Target of an action in the graph.
func (a Action) Source() Estado { return transitions[a].From }
func (a Action) Target() Estado { return transitions[a].To }

// CheckTransition returns an *InvalidTransitionError unless the action is
// legal from current.
func CheckTransition(current Estado, a Action) error {
	t, ok := transitions[a]
	if !ok || t.From != current {
		return &InvalidTransitionError{Current: current, Attempted: t.To, Action: a}
	}
	return nil
}

// Forward reports whether moving from -> to never goes back along the graph.
func Forward(from, to Estado) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return rank[to] > rank[from]
		}
	}
	return false
}
