package session_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"chat-tools-backend/auth"
	"chat-tools-backend/keyedlock"
	"chat-tools-backend/session"
	"chat-tools-backend/tool"
	"chat-tools-backend/workspace"

	"github.com/anthropics/anthropic-sdk-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var (
		store      *session.Store
		workspaces *workspace.Manager
		now        time.Time
	)

	BeforeEach(func() {
		var err error
		workspaces, err = workspace.NewManager(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		store = session.NewStore(keyedlock.New(), workspaces, session.WithClock(func() time.Time { return now }))
	})

	Describe("GetOrCreate", func() {
		It("returns the same record for the same id", func() {
			a, err := store.GetOrCreate("s1")
			Expect(err).NotTo(HaveOccurred())
			b, err := store.GetOrCreate("s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(BeIdenticalTo(b))
			Expect(store.Len()).To(Equal(1))
		})

		It("rejects empty ids", func() {
			_, err := store.GetOrCreate("")
			Expect(err).To(MatchError(session.ErrInvalidID))
		})

		It("creates one record under concurrent first access", func() {
			var wg sync.WaitGroup
			results := make([]*session.Session, 20)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], _ = store.GetOrCreate("shared")
				}(i)
			}
			wg.Wait()
			for _, s := range results {
				Expect(s).To(BeIdenticalTo(results[0]))
			}
		})
	})

	Describe("Clear", func() {
		It("removes the record and its workspace", func() {
			s, _ := store.GetOrCreate("s1")
			dir, err := s.Workspace()
			Expect(err).NotTo(HaveOccurred())
			Expect(dir).To(BeADirectory())

			Expect(store.Clear("s1")).To(Succeed())
			_, ok := store.Get("s1")
			Expect(ok).To(BeFalse())
			_, statErr := os.Stat(dir)
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		It("is a no-op for unknown ids", func() {
			Expect(store.Clear("nope")).To(Succeed())
			Expect(store.Clear("nope")).To(Succeed())
		})

		It("starts from an empty record afterwards", func() {
			s, _ := store.GetOrCreate("s1")
			s.CacheReply("hello", "hi")
			Expect(store.Clear("s1")).To(Succeed())

			fresh, _ := store.GetOrCreate("s1")
			Expect(fresh).NotTo(BeIdenticalTo(s))
			_, ok := fresh.CachedReply("hello")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("reply cache", func() {
		It("matches utterances after normalization", func() {
			s, _ := store.GetOrCreate("s1")
			s.CacheReply("What's the default branch?", "main")

			reply, ok := s.CachedReply("whats the default branch")
			Expect(ok).To(BeTrue())
			Expect(reply).To(Equal("main"))
		})

		It("drops the oldest 100 entries once the bound is exceeded", func() {
			s, _ := store.GetOrCreate("s1")
			for i := 0; i < session.MaxCachedReplies+1; i++ {
				s.CacheReply(fmt.Sprintf("query %d", i), "answer")
			}

			Expect(s.CacheLen()).To(Equal(session.MaxCachedReplies + 1 - session.CacheEvictBatch))
			for i := 0; i < session.CacheEvictBatch; i++ {
				_, ok := s.CachedReply(fmt.Sprintf("query %d", i))
				Expect(ok).To(BeFalse(), "query %d should have been evicted", i)
			}
			for _, i := range []int{session.CacheEvictBatch, 500, session.MaxCachedReplies} {
				_, ok := s.CachedReply(fmt.Sprintf("query %d", i))
				Expect(ok).To(BeTrue(), "query %d should still be cached", i)
			}
		})
	})

	Describe("history", func() {
		It("returns a copy", func() {
			s, _ := store.GetOrCreate("s1")
			s.AppendHistory(anthropic.NewUserMessage(anthropic.NewTextBlock("hi")))

			h := s.History()
			Expect(h).To(HaveLen(1))
			h[0] = anthropic.NewAssistantMessage(anthropic.NewTextBlock("mutated"))
			Expect(s.History()[0].Role).To(Equal(anthropic.MessageParamRoleUser))
		})
	})

	Describe("tools", func() {
		It("registers the tool set once per session", func() {
			var calls int32
			store.SetRegistrar(func(s *session.Session) *tool.Set {
				atomic.AddInt32(&calls, 1)
				return tool.NewSet(tool.New("whoami", "", func(context.Context, struct{}) (any, error) {
					return s.ID, nil
				}))
			})
			s, _ := store.GetOrCreate("s1")
			Expect(s.Tools().Names()).To(Equal([]string{"whoami"}))
			Expect(s.Tools().Len()).To(Equal(1))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})
	})

	Describe("Token", func() {
		var (
			s      *session.Session
			minted int32
			src    auth.Source
		)

		BeforeEach(func() {
			s, _ = store.GetOrCreate("s1")
			minted = 0
			src = auth.SourceFunc(func(context.Context) (auth.Token, error) {
				n := atomic.AddInt32(&minted, 1)
				return auth.Token{Value: fmt.Sprintf("tok-%d", n), ExpiresAt: now.Add(10 * time.Minute)}, nil
			})
		})

		It("serves the cached token while it is fresh", func() {
			t1, err := s.Token(context.Background(), "github", src)
			Expect(err).NotTo(HaveOccurred())
			t2, err := s.Token(context.Background(), "github", src)
			Expect(err).NotTo(HaveOccurred())
			Expect(t1.Value).To(Equal("tok-1"))
			Expect(t2.Value).To(Equal("tok-1"))
			Expect(atomic.LoadInt32(&minted)).To(Equal(int32(1)))
		})

		It("refreshes within three minutes of expiry", func() {
			_, _ = s.Token(context.Background(), "github", src)
			now = now.Add(8 * time.Minute)
			t2, err := s.Token(context.Background(), "github", src)
			Expect(err).NotTo(HaveOccurred())
			Expect(t2.Value).To(Equal("tok-2"))
		})

		It("keeps purposes apart", func() {
			a, _ := s.Token(context.Background(), "github", src)
			b, _ := s.Token(context.Background(), "gitlab", src)
			Expect(a.Value).NotTo(Equal(b.Value))
		})

		It("mints once under concurrent requests", func() {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := s.Token(context.Background(), "gitlab", src)
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()
			Expect(atomic.LoadInt32(&minted)).To(Equal(int32(1)))
		})

		It("wraps source errors", func() {
			_, err := s.Token(context.Background(), "jira", auth.Static("", auth.SchemeBearer))
			Expect(err).To(MatchError(ContainSubstring("jira")))
		})
	})
})
