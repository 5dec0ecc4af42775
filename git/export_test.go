package git

// Exported aliases for testing internal functions from
// git_test package.

// ParseStatusForTest exposes parseStatus.
var ParseStatusForTest = parseStatus

// StripDiffHeaderForTest exposes stripDiffHeader.
var StripDiffHeaderForTest = stripDiffHeader

// SameRemoteForTest exposes sameRemote.
var SameRemoteForTest = sameRemote
