package utils

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

func ParsePagination(c *fiber.Ctx) PaginationParams {
	return NewPagination(c.Query("page"), c.Query("limit"))
}

func NewPagination(pageRaw, limitRaw string) PaginationParams {
	page := parseIntDefault(pageRaw, 1)
	limit := parseIntDefault(limitRaw, defaultPageLimit)

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

func ApplyPagination(db *gorm.DB, p PaginationParams) *gorm.DB {
	return db.Offset(p.Offset).Limit(p.Limit)
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds a LIKE pattern matching value literally anywhere in the column.
// Pair it with LikeEscape in the query.
func ContainsPattern(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}

// LikeEscape is the ESCAPE clause matching ContainsPattern.
const LikeEscape = `ESCAPE '\'`
