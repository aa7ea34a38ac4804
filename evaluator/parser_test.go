package evaluator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/chexprompt/evaluator"
)

var _ = Describe("Parser", func() {
	Describe("ParseRating", func() {
		It("should parse both tables from a well formed reply", func() {
			sig, insig := evaluator.ParseRating(ratingText([6]int{1, 0, 0, 2, 0, 0}, [6]int{0, 0, 3, 0, 0, 1}))

			Expect(sig).To(Equal(table([6]int{1, 0, 0, 2, 0, 0})))
			Expect(insig).To(Equal(table([6]int{0, 0, 3, 0, 0, 1})))
			Expect(sig).To(HaveLen(6))
			Expect(insig).To(HaveLen(6))
		})

		It("should accept the bracketed list form from the prompt", func() {
			text := "Errors: Number of clinically significant errors by type: [(A, 0), (B, 1), (C, 0), (D, 0), (E, 0), (F, 0)]\n" +
				"Number of clinically insignificant errors by type: [(A, 0), (B, 0), (C, 0), (D, 0), (E, 0), (F, 2)]"

			sig, insig := evaluator.ParseRating(text)
			Expect(sig[evaluator.OmissionFinding]).To(Equal(1))
			Expect(insig[evaluator.OmissionComparison]).To(Equal(2))
		})

		It("should tolerate surrounding text and blank lines", func() {
			text := "Here is my assessment.\n\n" +
				"Number of clinically significant errors by type: ((A, 0), (B, 0), (C, 0), (D, 1), (E, 0), (F, 0))\n\n" +
				"Number of clinically insignificant errors by type: ((A, 0), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0))\r\n" +
				"Thanks."

			sig, insig := evaluator.ParseRating(text)
			Expect(sig[evaluator.IncorrectSeverity]).To(Equal(1))
			Expect(insig.Total()).To(Equal(0))
		})

		It("should map letters to categories regardless of pair order", func() {
			text := "Number of clinically significant errors by type: ((F, 6), (E, 5), (D, 4), (C, 3), (B, 2), (A, 1))\n" +
				"Number of clinically insignificant errors by type: ((A, 0), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0))"

			sig, _ := evaluator.ParseRating(text)
			Expect(sig).To(Equal(table([6]int{1, 2, 3, 4, 5, 6})))
		})

		It("should parse each line independently", func() {
			sig, insig := evaluator.ParseRating(significantOnly([6]int{0, 1, 0, 0, 0, 0}))

			Expect(sig).To(Equal(table([6]int{0, 1, 0, 0, 0, 0})))
			Expect(insig).To(BeNil())
		})

		It("should return identical tables when parsing the same text twice", func() {
			text := ratingText([6]int{2, 1, 0, 0, 1, 0}, [6]int{0, 0, 0, 1, 0, 0})

			sig1, insig1 := evaluator.ParseRating(text)
			sig2, insig2 := evaluator.ParseRating(text)
			Expect(sig1).To(Equal(sig2))
			Expect(insig1).To(Equal(insig2))
		})

		It("should skip an echoed format line and use the counts that follow", func() {
			text := "Number of clinically significant errors by type: [(A, n_A), (B, n_B), (C, n_C), (D, n_D), (E, n_E), (F, n_F)]\n" +
				"Number of clinically insignificant errors by type: [(A, n_A), (B, n_B), (C, n_C), (D, n_D), (E, n_E), (F, n_F)]\n" +
				"Errors: " + ratingText([6]int{1, 0, 0, 0, 0, 0}, [6]int{0, 0, 0, 0, 2, 0})

			sig, insig := evaluator.ParseRating(text)
			Expect(sig).To(Equal(table([6]int{1, 0, 0, 0, 0, 0})))
			Expect(insig).To(Equal(table([6]int{0, 0, 0, 0, 2, 0})))
		})

		It("should keep the first well formed line when several parse", func() {
			text := ratingText([6]int{0, 1, 0, 0, 0, 0}, zeroCounts) + "\n" +
				ratingText([6]int{0, 0, 0, 3, 0, 0}, [6]int{1, 1, 1, 1, 1, 1})

			sig, insig := evaluator.ParseRating(text)
			Expect(sig).To(Equal(table([6]int{0, 1, 0, 0, 0, 0})))
			Expect(insig).To(Equal(table(zeroCounts)))
		})

		DescribeTable("should return nil tables for malformed replies",
			func(text string) {
				sig, insig := evaluator.ParseRating(text)
				Expect(sig).To(BeNil())
				Expect(insig).To(BeNil())
			},
			Entry("empty reply", ""),
			Entry("filtered sentinel", evaluator.FilteredSentinel),
			Entry("prose only", "The candidate report has one false finding."),
			Entry("five pairs",
				"Number of clinically significant errors by type: ((A, 0), (B, 0), (C, 0), (D, 0), (E, 0))\n"+
					"Number of clinically insignificant errors by type: ((A, 0), (B, 0), (C, 0), (D, 0), (E, 0))"),
			Entry("seven pairs",
				"Number of clinically significant errors by type: ((A, 0), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0), (A, 1))\n"+
					"Number of clinically insignificant errors by type: ((A, 0), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0), (F, 0))"),
			Entry("non integer counts",
				"Number of clinically significant errors by type: ((A, 1.5), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0))\n"+
					"Number of clinically insignificant errors by type: ((A, n_A), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0))"),
			Entry("duplicate letters",
				"Number of clinically significant errors by type: ((A, 0), (A, 0), (C, 0), (D, 0), (E, 0), (F, 0))\n"+
					"Number of clinically insignificant errors by type: ((A, 0), (B, 0), (B, 0), (D, 0), (E, 0), (F, 0))"),
			Entry("unknown letters",
				"Number of clinically significant errors by type: ((A, 0), (B, 0), (C, 0), (D, 0), (E, 0), (G, 0))\n"+
					"Number of clinically insignificant errors by type: ((a, 0), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0))"),
			Entry("negative counts",
				"Number of clinically significant errors by type: ((A, -1), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0))\n"+
					"Number of clinically insignificant errors by type: ((A, 0), (B, 0), (C, 0), (D, 0), (E, 0), (F, -2))"),
			Entry("missing outer list",
				"Number of clinically significant errors by type: (A, 0), (B, 0), (C, 0), (D, 0), (E, 0), (F, 0) and more\n"+
					"Number of clinically insignificant errors by type: none"),
			Entry("junk between pairs",
				"Number of clinically significant errors by type: ((A, 0); (B, 0), (C, 0), (D, 0), (E, 0), (F, 0))\n"+
					"Number of clinically insignificant errors by type: ((A, 0), (B, 0), x (C, 0), (D, 0), (E, 0), (F, 0))"),
			Entry("template placeholders",
				"Number of clinically significant errors by type: [(A, n_A), (B, n_B), (C, n_C), (D, n_D), (E, n_E), (F, n_F)]\n"+
					"Number of clinically insignificant errors by type: [(A, n_A), (B, n_B), (C, n_C), (D, n_D), (E, n_E), (F, n_F)]"),
		)
	})

	Describe("ParseResponse", func() {
		It("should report a valid rating when both lines parse", func() {
			rating := evaluator.ParseResponse(ratingText(zeroCounts, zeroCounts))
			Expect(rating.Valid()).To(BeTrue())
			Expect(rating.ClinicallySignificant.Total()).To(Equal(0))
		})

		It("should keep nil rather than zeros for an unparseable line", func() {
			rating := evaluator.ParseResponse(significantOnly(zeroCounts))
			Expect(rating.Valid()).To(BeFalse())
			Expect(rating.ClinicallySignificant).ToNot(BeNil())
			Expect(rating.ClinicallyInsignificant).To(BeNil())
		})
	})
})
