package devtools

import (
	"regexp"
	"strconv"
	"strings"
)

// Summary holds fields derived from tool output.
type Summary struct {
	Compiled        *bool  `json:"compiled,omitempty"`
	CompileSkipped  bool   `json:"compile_skipped,omitempty"`
	TestsPassed     *int   `json:"tests_passed,omitempty"`
	TestsFailed     *int   `json:"tests_failed,omitempty"`
	TestsSkipped    *int   `json:"tests_skipped,omitempty"`
	ReturnValue     string `json:"return_value,omitempty"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	TxStatus        string `json:"tx_status,omitempty"`
	PIDs            []int  `json:"pids,omitempty"`
	State           string `json:"state,omitempty"`
}

var (
	testTotals  = regexp.MustCompile(`(\d+) tests passed, (\d+) failed, (\d+) skipped`)
	suiteResult = regexp.MustCompile(`(\d+) passed; (\d+) failed; (\d+) skipped`)
	compileOK   = regexp.MustCompile(`(?i)compiler run successful`)
	compileSkip = regexp.MustCompile(`(?i)no files changed, compilation skipped`)
	txHash      = regexp.MustCompile(`(?m)^transactionHash\s+(0x[0-9a-fA-F]{64})`)
	txStatus    = regexp.MustCompile(`(?m)^status\s+(\S+)`)
	anyHash     = regexp.MustCompile(`0x[0-9a-fA-F]{64}`)
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

// summarizeBuild reports compile status.
func summarizeBuild(stdout, stderr string) *Summary {
	out := stdout + "\n" + stderr
	switch {
	case compileSkip.MatchString(out):
		return &Summary{Compiled: boolPtr(true), CompileSkipped: true}
	case compileOK.MatchString(out):
		return &Summary{Compiled: boolPtr(true)}
	}
	return &Summary{}
}

// summarizeTest extracts pass/fail counts. The overall totals line wins; otherwise
// per-suite results are summed.
func summarizeTest(stdout, stderr string) *Summary {
	out := stdout + "\n" + stderr
	s := summarizeBuild(stdout, stderr)

	if m := testTotals.FindAllStringSubmatch(out, -1); len(m) > 0 {
		last := m[len(m)-1]
		s.TestsPassed = intPtr(atoi(last[1]))
		s.TestsFailed = intPtr(atoi(last[2]))
		s.TestsSkipped = intPtr(atoi(last[3]))
		return s
	}

	suites := suiteResult.FindAllStringSubmatch(out, -1)
	if len(suites) == 0 {
		return s
	}
	var passed, failed, skipped int
	for _, m := range suites {
		passed += atoi(m[1])
		failed += atoi(m[2])
		skipped += atoi(m[3])
	}
	s.TestsPassed, s.TestsFailed, s.TestsSkipped = intPtr(passed), intPtr(failed), intPtr(skipped)
	return s
}

func summarizeCall(stdout string) *Summary {
	return &Summary{ReturnValue: strings.TrimSpace(stdout)}
}

func summarizeSend(stdout string) *Summary {
	s := &Summary{}
	if m := txHash.FindStringSubmatch(stdout); m != nil {
		s.TransactionHash = m[1]
	} else if h := anyHash.FindString(stdout); h != "" {
		s.TransactionHash = h
	}
	if m := txStatus.FindStringSubmatch(stdout); m != nil {
		s.TxStatus = m[1]
	}
	return s
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
