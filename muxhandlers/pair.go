package muxhandlers

import (
	"github.com/vitalvas/harbor/mux"
)

// Registrar is implemented by *mux.Router and *mux.Group.
type Registrar interface {
	UsePre(prefix string, mw mux.Middleware) error
	UsePost(prefix string, mw mux.Middleware) error
}

// Pair is a middleware that works in both phases: Pre prepares the request
// and Post finishes the response. The halves share state through the
// request side channel.
type Pair struct {
	Pre  mux.Middleware
	Post mux.Middleware
}

// Register adds both halves to r under the same prefix.
func (p Pair) Register(r Registrar, prefix string) error {
	if err := r.UsePre(prefix, p.Pre); err != nil {
		return err
	}

	return r.UsePost(prefix, p.Post)
}
