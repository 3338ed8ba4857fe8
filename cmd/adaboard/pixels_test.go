package main

import (
	"testing"

	"github.com/srg/adaboard/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type PixelsTestSuite struct {
	CommandTestSuite
}

func (s *PixelsTestSuite) TestPixels_SetAll() {
	out, _, err := s.ExecuteCommand("pixels", "--simulate", "--color", "red", "--duration", "10ms")
	s.Require().NoError(err, "setting a color MUST succeed")

	testutils.NewTextAsserter(s.T()).Assert(out,
		"pixels: 0:#ff0000 1:#ff0000 2:#ff0000 3:#ff0000 4:#ff0000 5:#ff0000 6:#ff0000 7:#ff0000 8:#ff0000 9:#ff0000")
}

func (s *PixelsTestSuite) TestPixels_SetSelected() {
	out, _, err := s.ExecuteCommand("pixels", "--simulate", "--color", "#0000ff", "--pixel", "0,9", "--duration", "10ms")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out,
		"pixels: 0:#0000ff 1:#000000 2:#000000 3:#000000 4:#000000 5:#000000 6:#000000 7:#000000 8:#000000 9:#0000ff")
}

func (s *PixelsTestSuite) TestPixels_PixelOutOfRange() {
	_, _, err := s.ExecuteCommand("pixels", "--simulate", "--color", "red", "--pixel", "10", "--duration", "10ms")
	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "pixel 10 out of range 0..9")
}

func (s *PixelsTestSuite) TestPixels_FlashRunsToCompletion() {
	out, _, err := s.ExecuteCommand("pixels", "--simulate", "--flash", "green", "--duration", "5s")
	s.Require().NoError(err, "flash MUST finish before the duration")
	s.Assert().Regexp(`^frames: [1-9]\d* written`, out)
}

func (s *PixelsTestSuite) TestPixels_SequenceForDuration() {
	_, _, err := s.ExecuteCommand("pixels", "--simulate", "--sequence", "rotate", "--fps", "20", "--duration", "200ms")
	s.Require().NoError(err)
}

func (s *PixelsTestSuite) TestPixels_Validation() {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no mode", []string{}, "exactly one of --color, --sequence or --flash is required"},
		{"two modes", []string{"--color", "red", "--flash", "blue"}, "exactly one of"},
		{"bad color", []string{"--color", "nope"}, `invalid color "nope"`},
		{"unknown sequence", []string{"--sequence", "disco"}, `unknown light sequence "disco"`},
		{"brightness", []string{"--sequence", "pulse", "--brightness", "2"}, "--brightness must be in 0..1"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			_, _, err := s.ExecuteCommand(append([]string{"pixels", "--simulate"}, tt.args...)...)
			s.Require().Error(err)
			s.Assert().Contains(err.Error(), tt.want)
		})
	}
}

func TestPixelsTestSuite(t *testing.T) {
	suite.Run(t, new(PixelsTestSuite))
}
