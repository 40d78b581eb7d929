package matching

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Transition", func() {
	var (
		result *MatchResult
		failed *Error
	)

	BeforeEach(func() {
		result = &MatchResult{Status: "APPROVED", VendorMatch: true, Issues: []Issue{}}
		failed = NetworkError(nil)
	})

	When("starting from idle", func() {
		It("should move to submitting with the token", func() {
			next := Transition(State{Phase: PhaseIdle}, Started{Token: "a"})
			Expect(next).To(Equal(State{Phase: PhaseSubmitting, Token: "a"}))
		})
	})

	When("starting from succeeded", func() {
		It("should drop the previous result", func() {
			prev := State{Phase: PhaseSucceeded, Result: result, Token: "a"}
			next := Transition(prev, Started{Token: "b"})
			Expect(next.Phase).To(Equal(PhaseSubmitting))
			Expect(next.Result).To(BeNil())
			Expect(next.Current()).To(BeNil())
		})
	})

	When("starting from failed", func() {
		It("should clear the previous error", func() {
			prev := State{Phase: PhaseFailed, Err: failed, Token: "a"}
			next := Transition(prev, Started{Token: "b"})
			Expect(next.Err).To(BeNil())
		})
	})

	When("already submitting", func() {
		It("should ignore another start", func() {
			prev := State{Phase: PhaseSubmitting, Token: "a"}
			Expect(Transition(prev, Started{Token: "b"})).To(Equal(prev))
		})

		It("should ignore a rejection", func() {
			prev := State{Phase: PhaseSubmitting, Token: "a"}
			Expect(Transition(prev, Rejected{Err: ValidationError()})).To(Equal(prev))
		})
	})

	Describe("responses", func() {
		var prev State

		BeforeEach(func() {
			prev = State{Phase: PhaseSubmitting, Token: "a"}
		})

		It("should store the result for the current token", func() {
			next := Transition(prev, Resolved{Token: "a", Result: result})
			Expect(next.Phase).To(Equal(PhaseSucceeded))
			Expect(next.Current()).To(BeIdenticalTo(result))
		})

		It("should record the failure for the current token", func() {
			next := Transition(prev, Errored{Token: "a", Err: failed})
			Expect(next.Phase).To(Equal(PhaseFailed))
			Expect(next.Err).To(BeIdenticalTo(failed))
			Expect(next.Result).To(BeNil())
		})

		It("should ignore a result for another token", func() {
			Expect(Transition(prev, Resolved{Token: "b", Result: result})).To(Equal(prev))
		})

		It("should ignore a failure for another token", func() {
			Expect(Transition(prev, Errored{Token: "b", Err: failed})).To(Equal(prev))
		})

		It("should ignore a result once reset", func() {
			idle := Transition(prev, Cleared{})
			Expect(Transition(idle, Resolved{Token: "a", Result: result})).To(Equal(idle))
		})
	})

	When("a submit is rejected", func() {
		It("should keep the phase and record the error", func() {
			next := Transition(State{Phase: PhaseIdle}, Rejected{Err: ValidationError()})
			Expect(next.Phase).To(Equal(PhaseIdle))
			Expect(next.Err.Kind).To(Equal(KindValidation))
		})

		It("should replace a previous failure's error", func() {
			prev := State{Phase: PhaseFailed, Err: failed, Token: "a"}
			next := Transition(prev, Rejected{Err: ValidationError()})
			Expect(next.Phase).To(Equal(PhaseFailed))
			Expect(next.Err.Kind).To(Equal(KindValidation))
		})
	})

	When("cleared", func() {
		It("should return to idle from any phase", func() {
			for _, prev := range []State{
				{Phase: PhaseIdle, Err: ValidationError()},
				{Phase: PhaseSubmitting, Token: "a"},
				{Phase: PhaseSucceeded, Result: result, Token: "a"},
				{Phase: PhaseFailed, Err: failed, Token: "a"},
			} {
				Expect(Transition(prev, Cleared{})).To(Equal(State{Phase: PhaseIdle}))
			}
		})
	})
})
