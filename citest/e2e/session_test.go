package e2e_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agentcore/orchestrator/citest/testutil"
)

var _ = Describe("Session Workflows", func() {
	var tempDir *testutil.TempDir

	BeforeEach(func() {
		var err error
		tempDir, err = testutil.NewTempDir()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if tempDir != nil {
			tempDir.Cleanup()
		}
	})

	Describe("Basic Session Lifecycle", func() {
		It("should create a new session", func() {
			session, err := client.CreateSession(ctx, tempDir.Path)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.ID).NotTo(BeEmpty())

			client.DeleteSession(ctx, session.ID)
		})

		It("should retrieve session by ID", func() {
			session, err := client.CreateSession(ctx, tempDir.Path)
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			retrieved, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.ID).To(Equal(session.ID))
		})

		It("should list sessions", func() {
			session, err := client.CreateSession(ctx, tempDir.Path)
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			sessions, err := client.ListSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).NotTo(BeNil())
			Expect(len(sessions)).To(BeNumerically(">", 0))

			found := false
			for _, s := range sessions {
				if s.ID == session.ID {
					found = true
					break
				}
			}
			Expect(found).To(BeTrue(), "Created session should be in list")
		})

		It("should delete session", func() {
			session, err := client.CreateSession(ctx, tempDir.Path)
			Expect(err).NotTo(HaveOccurred())

			err = client.DeleteSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = client.GetSession(ctx, session.ID)
			Expect(err).To(HaveOccurred())
		})
	})
})
