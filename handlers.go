package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"autocam/models"
	"autocam/pkg/triage"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupRoutes(r *gin.Engine) {
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/projects", createProjectHandler)
	authGroup.GET("/projects", listProjectsHandler)
	authGroup.GET("/projects/:id", getProjectHandler)
	authGroup.DELETE("/projects/:id", deleteProjectHandler)
	authGroup.POST("/projects/:id/photos", uploadPhotoHandler)
	authGroup.GET("/projects/:id/photos", listPhotosHandler)
	authGroup.POST("/photos/select", selectPhotosHandler)
	authGroup.POST("/photos/deselect", deselectPhotosHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

func meHandler(c *gin.Context) {
	usernameVal, _ := c.Get("username")
	if usernameVal == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing username"})
		return
	}
	username := usernameVal.(string)
	c.JSON(http.StatusOK, gin.H{"username": username})
}

// getUserFromContext fetches the currently authenticated user using the username set by jwtAuthMiddleware
func getUserFromContext(c *gin.Context) (*models.User, bool) {
	unameVal, _ := c.Get("username")
	if unameVal == nil {
		return nil, false
	}
	uname := unameVal.(string)
	var user models.User
	if err := db.Where("username = ?", uname).First(&user).Error; err != nil {
		return nil, false
	}
	return &user, true
}

func isAdmin(c *gin.Context) bool {
	role, _ := c.Get("role")
	return role == "administrator"
}

// ownedProject loads a project and enforces that the caller owns it (admin sees all).
func ownedProject(c *gin.Context, user *models.User, id string) (*models.Project, bool) {
	var p models.Project
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return nil, false
	}
	if !isAdmin(c) && p.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return &p, true
}

// createProjectHandler creates a Project for the authenticated user
func createProjectHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// prevent duplicate project name for the same user
	var existing models.Project
	if err := db.Where("user_id = ? AND name = ?", user.ID, req.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "project already exists"})
		return
	}
	p := models.Project{ID: uuid.NewString(), UserID: user.ID, Name: req.Name}
	if err := db.Create(&p).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": p.ID})
}

type projectSummary struct {
	models.Project
	PhotoCount    int64 `json:"photoCount"`
	SelectedCount int64 `json:"selectedCount"`
}

func summarize(p models.Project) projectSummary {
	s := projectSummary{Project: p}
	db.Model(&models.Photo{}).Where("project_id = ?", p.ID).Count(&s.PhotoCount)
	db.Model(&models.Photo{}).Where("project_id = ? AND is_selected = true", p.ID).Count(&s.SelectedCount)
	return s
}

// listProjectsHandler lists projects for the authenticated user (admin sees all)
func listProjectsHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var items []models.Project
	q := db.Model(&models.Project{})
	if !isAdmin(c) {
		q = q.Where("user_id = ?", user.ID)
	}
	if err := q.Order("created_at desc").Limit(200).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]projectSummary, 0, len(items))
	for _, p := range items {
		out = append(out, summarize(p))
	}
	c.JSON(http.StatusOK, out)
}

func getProjectHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	p, ok := ownedProject(c, user, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, summarize(*p))
}

// deleteProjectHandler destroys a project and all of its photos.
func deleteProjectHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	p, ok := ownedProject(c, user, c.Param("id"))
	if !ok {
		return
	}
	if err := db.Where("project_id = ?", p.ID).Delete(&models.Photo{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if err := db.Delete(p).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}

// uploadPhotoHandler handles multipart image upload into a project. The new
// photo starts in PENDING with null scores; the analysis worker picks it up
// from there.
func uploadPhotoHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	project, ok := ownedProject(c, user, c.Param("id"))
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > 20*1024*1024 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 20MB)"})
		return
	}
	// simple content type sniff via header
	ct := file.Header.Get("Content-Type")
	baseDir := uploadBaseDir()
	relPath := filepath.Join(project.ID, file.Filename)
	fullPath := filepath.Join(baseDir, relPath)
	if err := os.MkdirAll(filepath.Join(baseDir, project.ID), 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return
	}
	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	var capturedAt *time.Time
	if v := c.PostForm("captured_at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			capturedAt = &t
		}
	}
	// If a photo for this project+filename already exists, return it
	var existing models.Photo
	if err := db.Where("project_id = ? AND file_name = ?", project.ID, file.Filename).First(&existing).Error; err == nil {
		c.JSON(http.StatusOK, gin.H{"id": existing.ID, "photo_set": existing.PhotoSet})
		return
	}
	photo := models.Photo{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		FileName:    file.Filename,
		StorePath:   filepath.ToSlash(relPath),
		ContentType: ct,
		SizeBytes:   file.Size,
		CapturedAt:  capturedAt,
		PhotoSet:    models.SetPending,
	}
	if err := db.Create(&photo).Error; err != nil {
		if isUniqueConstraintError(err) { // race: someone else uploaded first
			if err2 := db.Where("project_id = ? AND file_name = ?", project.ID, file.Filename).First(&existing).Error; err2 == nil {
				c.JSON(http.StatusOK, gin.H{"id": existing.ID, "photo_set": existing.PhotoSet})
				return
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": photo.ID, "photo_set": photo.PhotoSet})
}

// listPhotosHandler returns a project's photos in stable upload order.
// Optional query filters: set, min_quality, has_faces.
func listPhotosHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	project, ok := ownedProject(c, user, c.Param("id"))
	if !ok {
		return
	}
	q := db.Model(&models.Photo{}).Where("project_id = ?", project.ID)
	if v := c.Query("set"); v != "" {
		set, err := triage.ParseSet(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q = q.Where("photo_set = ?", string(set))
	}
	if v := c.Query("min_quality"); v != "" {
		minQ, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_quality"})
			return
		}
		q = q.Where("quality_score >= ?", minQ)
	}
	if c.Query("has_faces") == "true" {
		q = q.Where("has_faces = true")
	}
	var photos []models.Photo
	if err := q.Order("created_at asc, file_name asc").Find(&photos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, photos)
}

// loadOwnedPhotos resolves photo ids and enforces ownership of every photo
// before any write happens. Unknown ids are simply not returned.
func loadOwnedPhotos(c *gin.Context, user *models.User, ids []string) ([]models.Photo, bool) {
	var photos []models.Photo
	if err := db.Where("id IN ?", ids).Find(&photos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	if !isAdmin(c) {
		for _, p := range photos {
			var proj models.Project
			if err := db.Select("user_id").First(&proj, "id = ?", p.ProjectID).Error; err != nil || proj.UserID != user.ID {
				c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return nil, false
			}
		}
	}
	return photos, true
}

// selectPhotosHandler promotes photos into FINAL. Ids whose photo is not in
// BLURRY or CLEAN are silently excluded; the affected count is the result.
// The write is one batch inside a transaction: it succeeds or aborts whole.
func selectPhotosHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		PhotoIDs []string `json:"photo_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.PhotoIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo_ids required"})
		return
	}
	photos, ok := loadOwnedPhotos(c, user, req.PhotoIDs)
	if !ok {
		return
	}
	eligible := make([]string, 0, len(photos))
	for _, p := range photos {
		if triage.CanPromote(triage.Set(p.PhotoSet)) {
			eligible = append(eligible, p.ID)
		}
	}
	if len(eligible) == 0 {
		c.JSON(http.StatusOK, gin.H{"affected_count": 0})
		return
	}
	var affected int64
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Photo{}).
			Where("id IN ? AND photo_set IN ?", eligible, []string{models.SetBlurry, models.SetClean}).
			Updates(map[string]interface{}{"photo_set": models.SetFinal, "is_selected": true})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"affected_count": affected})
}

// deselectPhotosHandler demotes photos out of FINAL. The destination is
// recomputed per photo from is_blurry, so each photo is its own update; a
// failure on one photo does not abort the others and the response reports
// how many succeeded.
func deselectPhotosHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		PhotoIDs []string `json:"photo_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.PhotoIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo_ids required"})
		return
	}
	photos, ok := loadOwnedPhotos(c, user, req.PhotoIDs)
	if !ok {
		return
	}
	var affected int64
	for _, p := range photos {
		if !triage.CanDemote(triage.Set(p.PhotoSet)) {
			continue
		}
		target := triage.DemoteTarget(p.IsBlurry)
		res := db.Model(&models.Photo{}).
			Where("id = ? AND photo_set = ?", p.ID, models.SetFinal).
			Updates(map[string]interface{}{"photo_set": string(target), "is_selected": false})
		if res.Error != nil {
			// keep demoting the remaining photos; partial success is reported via the count
			continue
		}
		affected += res.RowsAffected
	}
	c.JSON(http.StatusOK, gin.H{"affected_count": affected})
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := RegisterUser(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	// Generate JWT token. Resolve role name from RoleID (we only store role_id now).
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(time.Hour * 24).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// create refresh token
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString, "refresh_token": refreshToken})
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(userID uint) (string, error) {
	// generate random 32-byte token (hex)
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	// hash for storage
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	rt := models.RefreshToken{UserID: userID, TokenHash: th, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}
	if err := db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

// helper to find refresh token record by raw token string
func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", th).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	// load user
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	// create access token
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(15 * time.Minute).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// rotate refresh token: revoke existing and create new one
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}
