package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	catalogentity "github.com/vastraworks/vastra/internal/catalog/entity"
	identityentity "github.com/vastraworks/vastra/internal/identity/entity"
	"github.com/vastraworks/vastra/internal/middleware"
	notifentity "github.com/vastraworks/vastra/internal/notification/entity"
	orderentity "github.com/vastraworks/vastra/internal/order/entity"
	syncentity "github.com/vastraworks/vastra/internal/sync/entity"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_vastra"
	JWTSecret  = "vastra-test-jwt-secret"
)

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "vastra")
	password := getEnv("DB_PASSWORD", "vastra")
	dbname := getEnv("DB_NAME", "vastra")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// search_path in DSN so all pooled connections use the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&identityentity.Organization{},
		&identityentity.User{},
		&catalogentity.Product{},
		&catalogentity.ColorVariant{},
		&catalogentity.SizeStock{},
		&catalogentity.StockMovement{},
		&orderentity.WholesaleOrder{},
		&orderentity.OrderItem{},
		&orderentity.OrderSyncRequest{},
		&orderentity.BuyerLink{},
		&syncentity.SyncLedgerEntry{},
		&syncentity.FactoryReceiving{},
		&notifentity.Notification{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
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
func GenerateTestToken(userID, name, orgID, orgName, role string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID,
		"uid":      userID,
		"name":     name,
		"email":    name + "@test.com",
		"org_id":   orgID,
		"org_name": orgName,
		"role":     role,
		"iss":      "vastra",
		"iat":      now.Unix(),
		"exp":      now.Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
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

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedOrg creates a test organization
func SeedOrg(t *testing.T, db *gorm.DB, id, name string) *identityentity.Organization {
	t.Helper()
	org := &identityentity.Organization{
		ID:        id,
		Name:      name,
		Status:    identityentity.OrgStatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("Failed to seed test organization: %v", err)
	}
	return org
}

// SeedUser creates a test user
func SeedUser(t *testing.T, db *gorm.DB, id, orgID, name, phone, role string) *identityentity.User {
	t.Helper()
	user := &identityentity.User{
		ID:        id,
		OrgID:     orgID,
		Name:      name,
		Email:     name + "@test.com",
		Phone:     phone,
		Role:      role,
		Status:    "active",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed test user: %v", err)
	}
	return user
}

// SeedProduct creates a product with one color variant and the given sizes
func SeedProduct(t *testing.T, db *gorm.DB, orgID, design, color string, sizes map[string]int) *catalogentity.Product {
	t.Helper()
	now := time.Now()
	p := &catalogentity.Product{
		ID:        fmt.Sprintf("p-%s-%s", orgID, design),
		OrgID:     orgID,
		Design:    design,
		CreatedAt: now,
		UpdatedAt: now,
	}
	variant := catalogentity.ColorVariant{
		ID:        fmt.Sprintf("v-%s-%s-%s", orgID, design, color),
		ProductID: p.ID,
		Color:     color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for size, stock := range sizes {
		variant.Sizes = append(variant.Sizes, catalogentity.SizeStock{
			ID:           fmt.Sprintf("s-%s-%s-%s-%s", orgID, design, color, size),
			VariantID:    variant.ID,
			Size:         size,
			CurrentStock: stock,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	p.Colors = append(p.Colors, variant)
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to seed test product: %v", err)
	}
	return p
}

// SeedBuyer creates a buyer directory entry
func SeedBuyer(t *testing.T, db *gorm.DB, orgID, contact, customerOrgID, preference string) *orderentity.BuyerLink {
	t.Helper()
	now := time.Now()
	b := &orderentity.BuyerLink{
		ID:             fmt.Sprintf("b-%s-%s", orgID, contact),
		OrgID:          orgID,
		Contact:        contact,
		Name:           "Buyer " + contact,
		CustomerOrgID:  customerOrgID,
		SyncPreference: preference,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("Failed to seed test buyer: %v", err)
	}
	return b
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
