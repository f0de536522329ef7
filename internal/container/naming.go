package container

import (
	"strconv"
	"strings"
)

// EncodeName escapes a single path component so it can be embedded in
// a flattened hierarchical chunk name without colliding with the path
// separator. Percent signs are escaped first so the subsequent slash
// escaping cannot itself introduce a literal "%s": replace % -> %p
// first, then / -> %s.
func EncodeName(name string) string {
	name = strings.ReplaceAll(name, "%", "%p")
	name = strings.ReplaceAll(name, "/", "%s")
	return name
}

// JoinPath builds a container path from already-plain components,
// encoding each one and joining with "/" (e.g. JoinPath("DataSet",
// "ResolutionLevel 0", "TimePoint 0", "Channel 0", "Data")).
func JoinPath(components ...string) string {
	encoded := make([]string, len(components))
	for i, c := range components {
		encoded[i] = EncodeName(c)
	}
	return "/" + strings.Join(encoded, "/")
}

// ChannelGroupPath builds the group path for one pyramid level's
// channel.
func ChannelGroupPath(level, timepoint, channel uint64) string {
	return JoinPath(
		"DataSet",
		groupName("ResolutionLevel", level),
		groupName("TimePoint", timepoint),
		groupName("Channel", channel),
	)
}

// ResolutionLevelPath builds the dataset path for one pyramid level's
// channel data leaf (e.g. "Data", "Histogram").
func ResolutionLevelPath(level, timepoint, channel uint64, leaf string) string {
	return JoinPath(
		"DataSet",
		groupName("ResolutionLevel", level),
		groupName("TimePoint", timepoint),
		groupName("Channel", channel),
		leaf,
	)
}

func groupName(prefix string, index uint64) string {
	return prefix + " " + strconv.FormatUint(index, 10)
}
