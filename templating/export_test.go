package templating

// Exported aliases for testing internal functions from
// templating_test package.

// SplitCommitMessageForTest exposes splitCommitMessage.
var SplitCommitMessageForTest = splitCommitMessage

// StabilityForTest exposes stability.
var StabilityForTest = stability

// PrettyNameForTest exposes prettyName.
var PrettyNameForTest = prettyName
