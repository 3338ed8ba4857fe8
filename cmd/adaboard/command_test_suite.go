package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs the adaboard root command with fresh flags.
// All cmd/adaboard suites embed it.
type CommandTestSuite struct {
	suite.Suite
}

func (s *CommandTestSuite) SetupSuite() {
	color.NoColor = true
}

func (s *CommandTestSuite) SetupTest() {
	resetScanFlags()
	resetStreamFlags()
	resetPixelsFlags()
	resetToneFlags()
	resetInspectFlags()
	for name, value := range map[string]string{
		"log-level": "",
		"verbose":   "false",
		"config":    "",
		"simulate":  "false",
	} {
		s.Require().NoError(rootCmd.PersistentFlags().Set(name, value))
	}
}

// ExecuteCommand runs the root command with args and returns stdout and stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (stdout, stderr string, err error) {
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// WriteConfig writes a config file into a temp dir and returns its path.
func (s *CommandTestSuite) WriteConfig(yaml string) string {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(yaml), 0o600), "config file MUST be written")
	return path
}
