package services

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"jeoparty/models"
	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
	"jeoparty/store"
)

const (
	colCategory = iota
	colValue
	colQuestion
	colAnswer
	colChoices
	colTips
)

type PackService struct {
	store store.Store
}

func NewPackService(st store.Store) *PackService {
	return &PackService{store: st}
}

type ImportPackRequest struct {
	Name      string
	CreatedBy string
	Public    bool
	Finale    bool
	Language  string
}

// ImportPack reads a workbook where every sheet is a round and stores the pack.
func (s *PackService) ImportPack(ctx context.Context, r io.Reader, req *ImportPackRequest) (*models.QuestionPack, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to open workbook")
	}
	defer f.Close()

	pack, err := BuildPack(f, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreatePack(ctx, pack); err != nil {
		return nil, err
	}

	questions := 0
	for _, round := range pack.Rounds {
		for _, category := range round.Categories {
			questions += len(category.Questions)
		}
	}
	logger.Info("Pack imported", "pack_id", pack.ID, "name", pack.Name, "rounds", len(pack.Rounds), "questions", questions)
	return pack, nil
}

// BuildPack turns the sheets of f into rounds. Columns are category, value,
// question, answer, choices and tips; choices and tips are separated by '|'.
// A first row starting with "category" is treated as a header.
func BuildPack(f *excelize.File, req *ImportPackRequest) (*models.QuestionPack, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "pack name is required")
	}
	pack := &models.QuestionPack{
		Name:          strings.TrimSpace(req.Name),
		Public:        req.Public,
		IncludeFinale: req.Finale,
		Language:      req.Language,
		CreatedBy:     req.CreatedBy,
	}
	if pack.Language == "" {
		pack.Language = "english"
	}

	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to read sheet "+sheetName)
		}
		round, err := buildRound(sheetName, rows)
		if err != nil {
			return nil, err
		}
		if len(round.Categories) == 0 {
			logger.Warn("Skipping empty sheet", "sheet", sheetName)
			continue
		}
		round.Number = len(pack.Rounds) + 1
		pack.Rounds = append(pack.Rounds, *round)
	}

	if len(pack.Rounds) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "workbook has no questions")
	}
	if pack.IncludeFinale {
		if pack.RegularRounds() == 0 {
			return nil, errors.New(errors.ErrCodeValidation, "a pack with a finale needs at least one regular round")
		}
		finale := pack.FinaleRound()
		if len(finale.Categories) != 1 || len(finale.Categories[0].Questions) != 1 {
			return nil, errors.New(errors.ErrCodeValidation, "the finale sheet must hold exactly one question")
		}
	}

	pack.Link()
	return pack, nil
}

func buildRound(sheetName string, rows [][]string) (*models.QuestionRound, error) {
	round := &models.QuestionRound{Name: sheetName}
	categories := make(map[string]int)

	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[colCategory]), "category") {
			continue
		}
		if len(row) <= colAnswer {
			return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("%s row %d: expected category, value, question and answer", sheetName, i+1))
		}

		value, err := strconv.Atoi(strings.TrimSpace(row[colValue]))
		if err != nil || value <= 0 {
			return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("%s row %d: invalid value %q", sheetName, i+1, row[colValue]))
		}
		question := models.Question{
			Question: strings.TrimSpace(row[colQuestion]),
			Answer:   strings.TrimSpace(row[colAnswer]),
			Value:    value,
		}
		if question.Question == "" || question.Answer == "" {
			return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("%s row %d: question and answer are required", sheetName, i+1))
		}
		extra := map[string]interface{}{}
		if choices := splitList(row, colChoices); len(choices) > 0 {
			extra["choices"] = choices
		}
		if tips := splitList(row, colTips); len(tips) > 0 {
			extra["tips"] = tips
		}
		if len(extra) > 0 {
			question.Extra = extra
		}

		name := strings.TrimSpace(row[colCategory])
		idx, ok := categories[name]
		if !ok {
			idx = len(round.Categories)
			categories[name] = idx
			round.Categories = append(round.Categories, models.QuestionCategory{Name: name, Order: idx + 1, BuzzTime: 10})
		}
		round.Categories[idx].Questions = append(round.Categories[idx].Questions, question)
	}
	return round, nil
}

func splitList(row []string, col int) []interface{} {
	if len(row) <= col || strings.TrimSpace(row[col]) == "" {
		return nil
	}
	var items []interface{}
	for _, item := range strings.Split(row[col], "|") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// GetPack returns a pack visible to userID.
func (s *PackService) GetPack(ctx context.Context, packID, userID string) (*models.QuestionPack, error) {
	pack, err := s.store.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	if !pack.Public && pack.CreatedBy != userID {
		return nil, errors.New(errors.ErrCodeForbidden, "pack is not available to this user")
	}
	return pack, nil
}
