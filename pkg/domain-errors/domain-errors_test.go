package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives shared by every layer.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "profile not found"}
		s.Equal("profile not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeNotFound}
		s.Equal("not_found", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err1 := &Error{Code: CodeDuplicate, Message: "profile already exists"}
		err2 := &Error{Code: CodeDuplicate, Message: "other"}
		s.True(errors.Is(err1, err2))
	})

	s.Run("does not match different codes", func() {
		s.False(errors.Is(&Error{Code: CodeNotFound}, &Error{Code: CodeInternal}))
	})

	s.Run("does not match non-domain errors", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not found")))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("wraps plain errors with the given code", func() {
		inner := errors.New("connection refused")
		err := Wrap(inner, CodeInternal, "failed to load profile")

		s.True(HasCode(err, CodeInternal))
		s.ErrorIs(err, inner)
		s.Equal("failed to load profile", err.Error())
	})

	s.Run("preserves the code of an existing domain error", func() {
		inner := New(CodePublishFailed, "bus unavailable")
		err := Wrap(inner, CodeInternal, "create failed")

		s.True(HasCode(err, CodePublishFailed))
	})
}

func (s *DomainErrorsSuite) TestHasCodeThroughFmtWrapping() {
	err := fmt.Errorf("outer: %w", New(CodeBusinessRule, "rejected"))
	s.True(HasCode(err, CodeBusinessRule))
	s.False(HasCode(err, CodeValidation))
	s.False(HasCode(nil, CodeValidation))
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeConflict, CodeOf(New(CodeConflict, "mismatch")))
	s.Equal(CodeInternal, CodeOf(errors.New("raw")))
}
