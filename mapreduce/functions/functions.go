// Package functions holds the map and reduce functions of every job this
// repository ships, and a registry to look them up by name.
package functions

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"mrjobs/mapreduce/types"
)

// ErrUnknownJob is returned by Lookup for a name that is not registered.
var ErrUnknownJob = errors.New("unknown job")

var registry = map[string]types.Job{
	"commonfriends": {
		Name:        "commonfriends",
		Description: "friends shared by every pair of people connected in an edge list",
		Map:         CommonFriendsMap,
		Reduce:      CommonFriendsReduce,
	},
	"minmaxtemppermonth": {
		Name:        "minmaxtemppermonth",
		Description: "minimum and maximum temperature per month",
		Map:         MinMaxTempPerMonthMap,
		Reduce:      MinMaxTempPerMonthReduce,
	},
	"minmaxavecity": {
		Name:        "minmaxavecity",
		Description: "minimum, maximum and average temperature per city and month",
		Map:         MinMaxAveCityMap,
		Reduce:      MinMaxAveCityReduce,
	},
}

// Lookup returns the job registered under name.
func Lookup(name string) (types.Job, error) {
	job, ok := registry[name]
	if !ok {
		return types.Job{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownJob, name, strings.Join(Names(), ", "))
	}
	return job, nil
}

// Names returns the registered job names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// splitFields splits s around sep and drops trailing empty fields, so
// "A\tB\t" yields two fields rather than three.
func splitFields(s, sep string) []string {
	fields := strings.Split(s, sep)
	for len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}
