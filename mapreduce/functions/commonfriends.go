package functions

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"

	"mrjobs/mapreduce/types"
	"mrjobs/utils"
)

// noCommonFriends is the reducer output for a pair where either side sent
// the empty friend list.
const noCommonFriends = "[]"

// CommonFriendsMap reads "person<TAB>friend1<TAB>friend2..." and emits one
// pair per friend, keyed by the sorted pair of names and carrying the full
// friend list of person. The list is not filtered, so it contains the friend
// the pair is built for as well. An empty line emits nothing; a line of
// only tabs has no person and is malformed.
func CommonFriendsMap(line string) ([]types.KeyValue, error) {
	if line == "" {
		return nil, nil
	}
	tokens := splitFields(line, "\t")
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: %q names no person", types.ErrMalformedRecord, line)
	}
	person := tokens[0]
	friends := friendList(tokens)

	kvs := make([]types.KeyValue, 0, len(tokens)-1)
	for _, friend := range tokens[1:] {
		kvs = append(kvs, types.KeyValue{Key: SortedPairKey(person, friend), Value: friends})
	}
	return kvs, nil
}

// friendList joins every friend in tokens with commas. A person with exactly
// one friend cannot share a friend with anyone, so the list is left empty.
func friendList(tokens []string) string {
	if len(tokens) == 2 {
		return ""
	}
	return strings.Join(tokens[1:], ",")
}

// SortedPairKey joins two names with a comma, smaller name first under a
// case-insensitive comparison. Both directions of an edge map to one key.
func SortedPairKey(person, friend string) string {
	if compareIgnoreCase(person, friend) < 0 {
		return person + "," + friend
	}
	return friend + "," + person
}

// compareIgnoreCase orders strings by UTF-16 code unit, treating units
// equal when they match after upper-casing or after lower-casing. Surrogate
// halves are compared as they are, so a supplementary character sorts below
// U+E000 and above U+D7FF.
func compareIgnoreCase(a, b string) int {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	n := min(len(ua), len(ub))
	for i := 0; i < n; i++ {
		c1, c2 := rune(ua[i]), rune(ub[i])
		if c1 == c2 {
			continue
		}
		c1, c2 = unicode.ToUpper(c1), unicode.ToUpper(c2)
		if c1 == c2 {
			continue
		}
		c1, c2 = unicode.ToLower(c1), unicode.ToLower(c2)
		if c1 != c2 {
			return int(c1) - int(c2)
		}
	}
	return len(ua) - len(ub)
}

// CommonFriendsReduce receives the friend lists of both people in a pair and
// emits the names present in every list, as "[a, b]". An empty list from
// either side short-circuits to "[]".
//
// A name counts as common when its tally equals the number of lists
// received. With a single list every name qualifies; that is kept as is.
func CommonFriendsReduce(key string, values []string) (string, error) {
	tally := make(map[string]int)
	numOfValues := 0
	for _, friends := range values {
		if friends == "" {
			return noCommonFriends, nil
		}
		for _, friend := range splitFields(friends, ",") {
			tally[friend]++
		}
		numOfValues++
	}

	common := utils.NewOrderedList[string]()
	for friend, count := range tally {
		if count == numOfValues {
			common.Add(friend)
		}
	}
	return "[" + strings.Join(common.GetUnderlyingList(), ", ") + "]", nil
}
