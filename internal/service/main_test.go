package service

import (
	"context"
	"testing"
	"time"

	"sphere/internal/cache"
	"sphere/internal/database"
	"sphere/internal/models"
	"sphere/internal/repository"
	"sphere/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret-which-is-long-enough"

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fixture wires every service over one in-memory database.
type fixture struct {
	db         *gorm.DB
	clock      *clockwork.FakeClock
	redis      *miniredis.Miniredis
	auth       *AuthService
	graph      *GraphService
	engagement *EngagementService
	feed       *FeedService
	posts      *PostService
	users      *UserService
	blobs      *storage.LocalStore

	postRepo       repository.PostRepository
	engagementRepo repository.EngagementRepository
	commentRepo    repository.CommentRepository
	userRepo       repository.UserRepository
	feedVersion    *FeedVersion
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	blobs, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	timeout := 5 * time.Second
	userRepo := repository.NewUserRepository(db, timeout)
	postRepo := repository.NewPostRepository(db, timeout)
	commentRepo := repository.NewCommentRepository(db, timeout)
	engagementRepo := repository.NewEngagementRepository(db, timeout)
	followRepo := repository.NewFollowRepository(db, timeout)

	clock := clockwork.NewFakeClockAt(epoch)
	feedVersion := &FeedVersion{}
	return &fixture{
		db:    db,
		clock: clock,
		redis: mr,
		auth: NewAuthService(userRepo, cache.NewRevocationStore(rdb), clock, AuthConfig{
			Secret:        []byte(testSecret),
			TokenTTL:      time.Hour,
			RefreshWindow: 24 * time.Hour,
			BcryptCost:    bcrypt.MinCost,
		}),
		graph:      NewGraphService(followRepo, userRepo),
		engagement: NewEngagementService(engagementRepo, commentRepo, postRepo, feedVersion),
		feed:       NewFeedService(postRepo, engagementRepo, commentRepo, userRepo, feedVersion),
		posts:      NewPostService(postRepo, userRepo, feedVersion),
		users:      NewUserService(userRepo, commentRepo, blobs, 1024),
		blobs:      blobs,

		postRepo:       postRepo,
		engagementRepo: engagementRepo,
		commentRepo:    commentRepo,
		userRepo:       userRepo,
		feedVersion:    feedVersion,
	}
}

func (f *fixture) register(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) post(t *testing.T, author *models.User, content string) *models.PostView {
	t.Helper()
	p, err := f.posts.CreatePost(context.Background(), CreatePostInput{UserID: author.ID, Content: content})
	require.NoError(t, err)
	return p
}

func (f *fixture) reload(t *testing.T, id uint) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, id).Error)
	return u
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, models.IsCode(err, code), "expected %s, got %v", code, err)
}
