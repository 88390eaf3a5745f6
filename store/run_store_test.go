package store_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"surveyor/store"
)

// backends returns the bundle factories every store spec runs against.
func backends() map[string]func() (*store.Bundle, func()) {
	return map[string]func() (*store.Bundle, func()){
		"Memory backend": func() (*store.Bundle, func()) {
			return store.NewMemoryBundle(), func() {}
		},
		"SQLite backend": func() (*store.Bundle, func()) {
			dir, err := os.MkdirTemp("", "store-test-*")
			Expect(err).NotTo(HaveOccurred())

			dbPath := filepath.Join(dir, "test.db")
			bundle, err := store.NewSQLiteBundle(dbPath)
			Expect(err).NotTo(HaveOccurred())

			return bundle, func() {
				bundle.Close()
				os.RemoveAll(dir)
			}
		},
	}
}

var _ = Describe("RunStore", func() {
	for name, newBundle := range backends() {
		newBundle := newBundle

		Context(name, func() {
			var (
				bundle  *store.Bundle
				cleanup func()
			)

			BeforeEach(func() {
				bundle, cleanup = newBundle()
			})

			AfterEach(func() {
				cleanup()
			})

			It("creates and retrieves a run", func() {
				Expect(bundle.Runs.CreateRun(store.Run{
					ID:         "run-1",
					Query:      "how do heat pumps work",
					QueryType:  "depth_first",
					Complexity: 2,
					Strategy:   "split by mechanism and market",
					StartedAt:  time.Now(),
				})).To(Succeed())

				run, err := bundle.Runs.GetRun("run-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(run.Query).To(Equal("how do heat pumps work"))
				Expect(run.QueryType).To(Equal("depth_first"))
				Expect(run.Complexity).To(Equal(2))
				Expect(run.Status).To(Equal("running"))
				Expect(run.FinishedAt).To(BeNil())
			})

			It("rejects duplicate run IDs", func() {
				Expect(bundle.Runs.CreateRun(store.Run{ID: "run-1", Query: "q", StartedAt: time.Now()})).To(Succeed())
				Expect(bundle.Runs.CreateRun(store.Run{ID: "run-1", Query: "q2", StartedAt: time.Now()})).NotTo(Succeed())
			})

			It("completes a run with essay and duration", func() {
				Expect(bundle.Runs.CreateRun(store.Run{ID: "run-1", Query: "q", StartedAt: time.Now()})).To(Succeed())

				Expect(bundle.Runs.CompleteRun("run-1", "completed", "the essay text", 4200)).To(Succeed())

				run, err := bundle.Runs.GetRun("run-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(run.Status).To(Equal("completed"))
				Expect(run.Essay).To(Equal("the essay text"))
				Expect(run.DurationMs).To(Equal(int64(4200)))
				Expect(run.FinishedAt).NotTo(BeNil())
			})

			It("errors when completing an unknown run", func() {
				Expect(bundle.Runs.CompleteRun("nonexistent", "completed", "", 0)).NotTo(Succeed())
			})

			It("lists runs most recent first with a limit", func() {
				base := time.Now().Add(-time.Hour)
				for i, id := range []string{"run-a", "run-b", "run-c"} {
					Expect(bundle.Runs.CreateRun(store.Run{
						ID:        id,
						Query:     "query " + id,
						StartedAt: base.Add(time.Duration(i) * time.Minute),
					})).To(Succeed())
				}

				runs, err := bundle.Runs.ListRuns(2)
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).To(HaveLen(2))
				Expect(runs[0].ID).To(Equal("run-c"))
				Expect(runs[1].ID).To(Equal("run-b"))
			})

			It("returns empty list when no runs exist", func() {
				runs, err := bundle.Runs.ListRuns(10)
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).To(BeEmpty())
			})
		})
	}
})

var _ = Describe("ResultStore", func() {
	for name, newBundle := range backends() {
		newBundle := newBundle

		Context(name, func() {
			var (
				bundle  *store.Bundle
				cleanup func()
			)

			BeforeEach(func() {
				bundle, cleanup = newBundle()
				Expect(bundle.Runs.CreateRun(store.Run{ID: "run-1", Query: "q", StartedAt: time.Now()})).To(Succeed())
			})

			AfterEach(func() {
				cleanup()
			})

			It("saves and retrieves results by run", func() {
				Expect(bundle.Results.SaveResult(store.SubtaskRecord{
					RunID:         "run-1",
					TaskID:        "task_001",
					Status:        "completed",
					ToolCallsUsed: 6,
					Insights:      "heat pumps move heat rather than generate it",
					Confidence:    0.85,
					ExecutionMs:   31000,
				})).To(Succeed())
				Expect(bundle.Results.SaveResult(store.SubtaskRecord{
					RunID:        "run-1",
					TaskID:       "task_002",
					Status:       "error",
					ErrorMessage: "conversation loop panicked",
				})).To(Succeed())

				records, err := bundle.Results.GetResultsByRun("run-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
				Expect(records[0].TaskID).To(Equal("task_001"))
				Expect(records[0].Confidence).To(BeNumerically("~", 0.85, 0.001))
				Expect(records[1].Status).To(Equal("error"))
				Expect(records[1].ErrorMessage).To(Equal("conversation loop panicked"))
			})

			It("round-trips the conversation transcript", func() {
				transcript := `[{"Role":"user","Content":"find sources"}]`
				Expect(bundle.Results.SaveResult(store.SubtaskRecord{
					RunID:            "run-1",
					TaskID:           "task_001",
					Status:           "completed",
					ConversationJSON: transcript,
				})).To(Succeed())

				records, err := bundle.Results.GetResultsByRun("run-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				Expect(records[0].ConversationJSON).To(Equal(transcript))
			})

			It("returns empty slice for an unknown run", func() {
				records, err := bundle.Results.GetResultsByRun("nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})
	}
})

var _ = Describe("ReportStore", func() {
	for name, newBundle := range backends() {
		newBundle := newBundle

		Context(name, func() {
			var (
				bundle  *store.Bundle
				cleanup func()
			)

			BeforeEach(func() {
				bundle, cleanup = newBundle()
			})

			AfterEach(func() {
				cleanup()
			})

			It("saves and retrieves a report", func() {
				Expect(bundle.Reports.SaveReport(store.Report{
					ID:        "rep-1",
					Title:     "Energy Weekly",
					HTML:      "<html><body>digest</body></html>",
					RunIDs:    []string{"run-1", "run-2"},
					CreatedAt: time.Now(),
				})).To(Succeed())

				rep, err := bundle.Reports.GetReport("rep-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(rep.Title).To(Equal("Energy Weekly"))
				Expect(rep.HTML).To(ContainSubstring("digest"))
				Expect(rep.RunIDs).To(Equal([]string{"run-1", "run-2"}))
			})

			It("lists reports most recent first with a limit", func() {
				base := time.Now().Add(-time.Hour)
				for i, id := range []string{"rep-a", "rep-b", "rep-c"} {
					Expect(bundle.Reports.SaveReport(store.Report{
						ID:        id,
						Title:     id,
						HTML:      "<html></html>",
						CreatedAt: base.Add(time.Duration(i) * time.Minute),
					})).To(Succeed())
				}

				reports, err := bundle.Reports.ListReports(2)
				Expect(err).NotTo(HaveOccurred())
				Expect(reports).To(HaveLen(2))
				Expect(reports[0].ID).To(Equal("rep-c"))
				Expect(reports[1].ID).To(Equal("rep-b"))
			})

			It("errors on an unknown report ID", func() {
				_, err := bundle.Reports.GetReport("nonexistent")
				Expect(err).To(HaveOccurred())
			})
		})
	}
})
