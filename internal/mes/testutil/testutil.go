package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// JWTSecret 测试签名密钥，可用 MES_TEST_JWT_SECRET 覆盖
var JWTSecret = config.GetEnvOrDefault("MES_TEST_JWT_SECRET", "nimo-mes-test-secret")

// TestEnv holds test environment resources
type TestEnv struct {
	DB       *gorm.DB
	Repos    *repository.Repositories
	Services *service.Services
	Router   *gin.Engine
	T        *testing.T
}

// NewTestEnv builds an isolated database, the full service graph and a router.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	db := SetupTestDB(t)
	repos := repository.NewRepositories(db)
	return &TestEnv{
		DB:       db,
		Repos:    repos,
		Services: service.NewServices(repos, nil, NewTestConfig(), zap.NewNop()),
		Router:   SetupRouter(),
		T:        t,
	}
}

// NewTestConfig returns a config with MES defaults and no external services.
func NewTestConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: JWTSecret, Issuer: "nimo-mes"},
		MES: config.MESConfig{
			DefaultSiteCode: "S1",
			LineageMaxDepth: 64,
			MaxBatchSize:    100,
			PartCacheTTL:    time.Minute,
		},
	}
}

// SetupTestDB opens a private in-memory sqlite database per test.
// A single connection keeps the in-memory database alive and serializes
// transactions the way row locks would on postgres.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(entity.AllModels()...); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, email string, roles, permissions []string) string {
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": email,
		"roles": roles,
		"perms": permissions,
		"iss":   "nimo-mes",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a default admin test user
func DefaultTestToken() string {
	return GenerateTestToken(
		"test-user-001",
		"Test Admin",
		"admin@test.com",
		[]string{middleware.AdminRole},
		[]string{"*"},
	)
}

// OperatorTestToken returns a token for a shop floor operator without extra roles
func OperatorTestToken() string {
	return GenerateTestToken(
		"test-operator-001",
		"Test Operator",
		"operator@test.com",
		[]string{"mes_operator"},
		nil,
	)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// ResponseData returns the "data" object of a response
func ResponseData(w *httptest.ResponseRecorder) map[string]interface{} {
	data, _ := ParseResponse(w)["data"].(map[string]interface{})
	return data
}

// SeedSite creates a test site in the database
func SeedSite(t *testing.T, db *gorm.DB, code string) *entity.Site {
	t.Helper()
	site := &entity.Site{
		ID:   newID(),
		Code: code,
		Name: "Site " + code,
	}
	if err := repository.NewPartRepository(db).CreateSite(context.Background(), site); err != nil {
		t.Fatalf("Failed to seed test site: %v", err)
	}
	return site
}

// SeedPart creates an active test part, optionally attached to a site
func SeedPart(t *testing.T, db *gorm.DB, partNumber string, site *entity.Site) *entity.Part {
	t.Helper()
	part := &entity.Part{
		ID:         newID(),
		PartNumber: partNumber,
		Name:       "Part " + partNumber,
		IsActive:   true,
	}
	if site != nil {
		part.SiteID = site.ID
	}
	if err := repository.NewPartRepository(db).Create(context.Background(), part); err != nil {
		t.Fatalf("Failed to seed test part: %v", err)
	}
	return part
}

// SeedFormatConfig creates an active part level format config
func SeedFormatConfig(t *testing.T, db *gorm.DB, partID, template string, start, increment int64) *entity.SerialFormatConfig {
	t.Helper()
	cfg := &entity.SerialFormatConfig{
		ID:                  newID(),
		Name:                "cfg-" + template,
		PatternTemplate:     template,
		SequentialStart:     start,
		SequentialIncrement: increment,
		NextSequence:        start,
		IsActive:            true,
		CreatedBy:           "seed",
	}
	if partID != "" {
		cfg.PartID = &partID
	}
	if err := repository.NewFormatConfigRepository(db).Create(context.Background(), cfg); err != nil {
		t.Fatalf("Failed to seed format config: %v", err)
	}
	return cfg
}

// SeedIdentity creates an ACTIVE system generated identity
func SeedIdentity(t *testing.T, db *gorm.DB, partID, serial string) *entity.SerialIdentity {
	t.Helper()
	identity := &entity.SerialIdentity{
		ID:           newID(),
		PartID:       partID,
		SerialNumber: serial,
		OriginMethod: entity.OriginSystemGenerated,
		Status:       entity.IdentityStatusActive,
		CreatedBy:    "seed",
	}
	if err := repository.NewIdentityRepository(db).Create(context.Background(), identity); err != nil {
		t.Fatalf("Failed to seed identity: %v", err)
	}
	return identity
}

func newID() string {
	return uuid.New().String()[:32]
}
