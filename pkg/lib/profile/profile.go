package profile

import (
	"net/http"
	"net/http/pprof"
)

type profileConfig struct {
	cmdline bool
	profile bool
	symbol  bool
	trace   bool
}

// Option selects an optional profiling endpoint.
type Option func(p *profileConfig)

func WithCmdline() Option { return func(p *profileConfig) { p.cmdline = true } }
func WithCPU() Option     { return func(p *profileConfig) { p.profile = true } }
func WithSymbol() Option  { return func(p *profileConfig) { p.symbol = true } }
func WithTrace() Option   { return func(p *profileConfig) { p.trace = true } }

func (p *profileConfig) apply(options []Option) {
	if len(options) == 0 {
		p.cmdline, p.profile, p.symbol, p.trace = true, true, true, true
		return
	}
	for _, o := range options {
		o(p)
	}
}

// RegisterHandlers registers pprof handlers under /debug/pprof/ on mux.
// The index, which also serves the named runtime profiles, is always
// registered; with no options, every optional endpoint is too.
func RegisterHandlers(mux *http.ServeMux, options ...Option) {
	config := &profileConfig{}
	config.apply(options)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	if config.cmdline {
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	}
	if config.profile {
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	}
	if config.symbol {
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	}
	if config.trace {
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
}
