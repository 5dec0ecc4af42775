package dispatch

// WorkingCopyDirForTest exposes workingCopyDir.
var WorkingCopyDirForTest = workingCopyDir

// DescribeForTest exposes describe.
var DescribeForTest = describe
