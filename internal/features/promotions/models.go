// Package promotions управляет промо-акциями: шагами, назначениями пользователям
// и прогрессом выполнения шагов.
// models.go описывает структуры данных промо-акций и прогресса.
package promotions

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Статусы промо-акции
const (
	StatusActive   = "active"
	StatusArchived = "archived" // закрыта вручную или по end_date
)

// FirstStep — номер шага, выполнение которого открывает счёт в букмекерской конторе.
const FirstStep = 1

// Promotion — промо-акция.
type Promotion struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	SportsbookName *string    `json:"sportsbookName,omitempty"` // имя счёта, который создаётся на шаге 1
	StartDate      *time.Time `json:"startDate,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	CreatedBy      uuid.UUID  `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Steps          []Step     `json:"steps"`
}

// Sportsbook возвращает имя букмекерской конторы без пробелов по краям.
func (p *Promotion) Sportsbook() string {
	if p.SportsbookName == nil {
		return ""
	}
	return strings.TrimSpace(*p.SportsbookName)
}

// HasStep — шаг с таким номером описан в акции.
func (p *Promotion) HasStep(n int) bool {
	for _, s := range p.Steps {
		if s.StepNumber == n {
			return true
		}
	}
	return false
}

// Step — шаг промо-акции.
type Step struct {
	StepNumber  int    `json:"stepNumber"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Assignment — пользователь допущен к промо-акции.
type Assignment struct {
	UserID      uuid.UUID `json:"userId"`
	PromotionID uuid.UUID `json:"promotionId"`
	AssignedBy  uuid.UUID `json:"assignedBy"`
	AssignedAt  time.Time `json:"assignedAt"`
}

// Progress — прогресс пользователя по промо-акции. Одна запись на пару (user, promotion).
type Progress struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"userId"`
	PromotionID    uuid.UUID  `json:"promotionId"`
	CompletedSteps []int      `json:"completedSteps"`
	Percentage     int        `json:"percentage"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"` // ставится один раз при достижении 100%
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewPromotion — данные для создания промо-акции.
type NewPromotion struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	SportsbookName *string    `json:"sportsbookName"`
	StartDate      *time.Time `json:"startDate"`
	EndDate        *time.Time `json:"endDate"`
	Steps          []Step     `json:"steps"`
}

// PromotionPatch — административная правка. nil-поле означает «не менять»;
// Steps, если задан, заменяет список шагов целиком.
type PromotionPatch struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Status         *string    `json:"status"`
	SportsbookName *string    `json:"sportsbookName"`
	StartDate      *time.Time `json:"startDate"`
	EndDate        *time.Time `json:"endDate"`
	Steps          *[]Step    `json:"steps"`
}

func (p PromotionPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.SportsbookName == nil && p.StartDate == nil && p.EndDate == nil && p.Steps == nil
}

// Apply переносит заданные поля в промо-акцию.
func (p PromotionPatch) Apply(promo *Promotion) {
	if p.Title != nil {
		promo.Title = *p.Title
	}
	if p.Description != nil {
		promo.Description = *p.Description
	}
	if p.Status != nil {
		promo.Status = *p.Status
	}
	if p.SportsbookName != nil {
		name := strings.TrimSpace(*p.SportsbookName)
		if name == "" {
			promo.SportsbookName = nil
		} else {
			promo.SportsbookName = &name
		}
	}
	if p.StartDate != nil {
		promo.StartDate = p.StartDate
	}
	if p.EndDate != nil {
		promo.EndDate = p.EndDate
	}
	if p.Steps != nil {
		promo.Steps = *p.Steps
	}
}

// Percentage — целая часть 100*completed/total; 0, если шагов нет.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return 100 * completed / total
}

// normalizeSteps убирает повторы и сортирует номера шагов.
func normalizeSteps(steps []int) []int {
	seen := make(map[int]struct{}, len(steps))
	out := make([]int, 0, len(steps))
	for _, n := range steps {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func containsStep(steps []int, n int) bool {
	i := sort.SearchInts(steps, n)
	return i < len(steps) && steps[i] == n
}

func knownStatus(s string) bool {
	return s == StatusActive || s == StatusArchived
}
