// Package util provides the argument helpers shared by the command handlers.
package util

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMissingArg is returned when a required positional argument is absent.
var ErrMissingArg = errors.New("missing argument")

// CleanArgs normalizes raw command arguments in place: surrounding space and
// double quotes are stripped and doubled quotes ("") inside are unescaped.
func CleanArgs(args []string) []string {
	for i, v := range args {
		v = strings.Trim(strings.TrimSpace(v), `"`)
		args[i] = strings.ReplaceAll(v, `""`, `"`)
	}
	return args
}

// StringArg returns args[i] or ErrMissingArg when it is absent or empty.
func StringArg(args []string, i int, name string) (string, error) {
	if i >= len(args) || args[i] == "" {
		return "", fmt.Errorf("%s: %w", name, ErrMissingArg)
	}
	return args[i], nil
}

// FloatArg parses args[i] as a finite float.
func FloatArg(args []string, i int, name string) (float64, error) {
	s, err := StringArg(args, i, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: not a finite number: %q", name, s)
	}
	return v, nil
}

// MillisArg parses an optional millisecond count at args[i]. An absent or
// empty argument yields zero.
func MillisArg(args []string, i int, name string) (time.Duration, error) {
	if i >= len(args) || args[i] == "" {
		return 0, nil
	}
	v, err := FloatArg(args, i, name)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: negative duration %v", name, v)
	}
	return time.Duration(v * float64(time.Millisecond)), nil
}

// HasFlag reports whether any argument from index start on equals flag,
// ignoring case.
func HasFlag(args []string, start int, flag string) bool {
	for i := start; i < len(args); i++ {
		if strings.EqualFold(args[i], flag) {
			return true
		}
	}
	return false
}
