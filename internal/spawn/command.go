package spawn

import (
	"fmt"
	"strings"
)

// Var is one environment assignment.
type Var struct {
	Key   string
	Value string
}

// Env is an ordered list of environment assignments.
type Env []Var

// Set appends or replaces key, keeping the position of an existing entry.
func (e Env) Set(key, value string) Env {
	for i := range e {
		if e[i].Key == key {
			e[i].Value = value
			return e
		}
	}
	return append(e, Var{Key: key, Value: value})
}

// ParseEnv parses KEY=VALUE assignments, keeping their order.
func ParseEnv(assignments []string) (Env, error) {
	var env Env
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid environment assignment %q, expected KEY=VALUE", a)
		}
		env = env.Set(key, value)
	}
	return env, nil
}

// JoinArgv joins argv into a single command line.
func JoinArgv(argv []string) string {
	return strings.Join(argv, " ")
}

// BuildCommand assembles the final shell command. Values are inserted verbatim.
//
//	BuildCommand(Env{{"A", "1"}}, "ls -la", "/tmp") == "cd /tmp ; env A=1 ls -la"
func BuildCommand(env Env, command, chdir string) string {
	cmd := command

	if len(env) > 0 {
		pairs := make([]string, 0, len(env))
		for _, v := range env {
			pairs = append(pairs, v.Key+"="+v.Value)
		}
		cmd = fmt.Sprintf("env %s %s", strings.Join(pairs, " "), cmd)
	}

	if chdir != "" {
		cmd = fmt.Sprintf("cd %s ; %s", chdir, cmd)
	}

	return cmd
}
