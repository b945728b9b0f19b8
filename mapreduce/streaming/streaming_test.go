package streaming

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mrjobs/mapreduce/functions"
	"mrjobs/mapreduce/types"
)

func runner(t *testing.T, name string, stderr *bytes.Buffer) *Runner {
	t.Helper()
	job, err := functions.Lookup(name)
	require.NoError(t, err)
	return &Runner{Job: job, Reporter: NewReporter(stderr)}
}

// sortLines stands in for the framework's shuffle between the two sides.
func sortLines(s string) string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func TestMapThenReduce(t *testing.T) {
	var stderr bytes.Buffer
	rn := runner(t, "commonfriends", &stderr)

	var mapped bytes.Buffer
	require.NoError(t, rn.Map(strings.NewReader("A\tB\tC\nB\tA\tC\r\nC\tA\tB"), &mapped))
	require.Equal(t, 6, strings.Count(mapped.String(), "\n"))

	var reduced bytes.Buffer
	require.NoError(t, rn.Reduce(strings.NewReader(sortLines(mapped.String())), &reduced))
	require.Equal(t, "A,B\t[C]\nA,C\t[B]\nB,C\t[A]\n", reduced.String())

	require.Contains(t, stderr.String(), "reporter:counter:mrjobs,map_input_records,3\n")
	require.Contains(t, stderr.String(), "reporter:counter:mrjobs,map_output_records,6\n")
	require.Contains(t, stderr.String(), "reporter:counter:mrjobs,reduce_input_records,6\n")
	require.Contains(t, stderr.String(), "reporter:counter:mrjobs,reduce_input_groups,3\n")
	require.Contains(t, stderr.String(), "reporter:status:commonfriends: mapped 3 records into 6 pairs\n")
	require.Contains(t, stderr.String(), "reporter:status:commonfriends: reduced 3 keys from 6 records\n")
}

func TestReduceTemperatures(t *testing.T) {
	var stderr bytes.Buffer
	rn := runner(t, "minmaxavecity", &stderr)
	in := "Paris month 1:\t0 0 0\nParis month 1:\t10 10 10\nParis month 1:\t20 20 20\nRome month 1:\t7 7 7\n"

	var out bytes.Buffer
	require.NoError(t, rn.Reduce(strings.NewReader(in), &out))
	require.Equal(t, "Paris month 1:\t0 20 10.0\nRome month 1:\t7 7 7.0\n", out.String())
}

func TestReduceGroupsEmptyKey(t *testing.T) {
	job := types.Job{
		Name: "count",
		Reduce: func(key string, values []string) (string, error) {
			return strings.Join(values, "+"), nil
		},
	}
	rn := &Runner{Job: job}

	var out bytes.Buffer
	require.NoError(t, rn.Reduce(strings.NewReader("\ta\n\tb\nx\ny\tc\n"), &out))
	require.Equal(t, "\ta+b\nx\t\ny\tc\n", out.String())
}

func TestEmptyInput(t *testing.T) {
	var stderr bytes.Buffer
	rn := runner(t, "minmaxtemppermonth", &stderr)

	var out bytes.Buffer
	require.NoError(t, rn.Map(strings.NewReader(""), &out))
	require.NoError(t, rn.Reduce(strings.NewReader(""), &out))
	require.Empty(t, out.String())
	require.Empty(t, stderr.String())
}

func TestMapErrorNamesLine(t *testing.T) {
	var stderr bytes.Buffer
	rn := runner(t, "minmaxtemppermonth", &stderr)

	err := rn.Map(strings.NewReader("s1\t3\tOslo\t5\ns2\t3\n"), &bytes.Buffer{})
	require.ErrorIs(t, err, types.ErrMalformedRecord)
	require.ErrorContains(t, err, "line 2")
	require.Contains(t, stderr.String(), "map_input_records,2")
}

func TestReporterStatus(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReporter(&buf)
	rep.Statusf("split %d\ndone", 4)
	rep.IncrCounter("g", "c", 0)
	require.Equal(t, "reporter:status:split 4 done\n", buf.String())

	var nilRep *Reporter
	nilRep.IncrCounter("g", "c", 1)
	nilRep.Statusf("ignored")
}
