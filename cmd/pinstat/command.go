package main

import (
	"strconv"
	"strings"

	"github.com/wippyai/pinbridge/errors"
	"github.com/wippyai/pinbridge/trace"
)

// commandUsage lists the interactive commands and their arguments.
var commandUsage = []string{
	"alloc NAME TYPE",
	"bind NAME ID",
	"nil NAME",
	"new NAME OBJECT",
	"share NAME HANDLE",
	"reseat HANDLE OBJECT",
	"close HANDLE",
	"external NAME",
	"share-external NAME HANDLE",
	"close-external HANDLE",
	"collect",
	"check OBJECT COUNT",
}

// parseCommand turns one interactive line into a script step.
func parseCommand(line string) (trace.Step, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return trace.Step{}, errors.InvalidInput(errors.PhaseTrace, "empty command")
	}

	st := trace.Step{Op: trace.Op(fields[0])}
	args := fields[1:]
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch st.Op {
	case trace.OpAlloc:
		st.Name, st.Type = arg(0), arg(1)
	case trace.OpBind:
		st.Name = arg(0)
		id, err := strconv.ParseUint(arg(1), 0, 64)
		if err != nil {
			return trace.Step{}, errors.Wrap(errors.PhaseTrace, errors.KindInvalidInput, err, "identity")
		}
		st.ID = id
	case trace.OpNil, trace.OpExternal:
		st.Name = arg(0)
	case trace.OpNew:
		st.Name, st.Object = arg(0), arg(1)
	case trace.OpShare, trace.OpShareExternal:
		st.Name, st.Handle = arg(0), arg(1)
	case trace.OpReseat:
		st.Handle, st.Object = arg(0), arg(1)
	case trace.OpClose, trace.OpCloseExternal:
		st.Handle = arg(0)
	case trace.OpCheck:
		st.Object = arg(0)
		if s := arg(1); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return trace.Step{}, errors.Wrap(errors.PhaseTrace, errors.KindInvalidInput, err, "count")
			}
			st.Count = &n
		}
	}

	s := trace.Script{Steps: []trace.Step{st}}
	if err := s.Validate(); err != nil {
		return trace.Step{}, err
	}
	return st, nil
}
