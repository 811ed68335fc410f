package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"webchat-backend/models"
)

// HistoryExport is the structured form of a session's conversation,
// serialized as JSON or rendered as a spreadsheet.
type HistoryExport struct {
	ExportInfo ExportInfo                `json:"export_info"`
	Turns      []models.ConversationTurn `json:"turns"`
}

type ExportInfo struct {
	SessionID    string    `json:"session_id"`
	ExportDate   time.Time `json:"export_date"`
	TotalTurns   int       `json:"total_turns"`
	IngestedURLs []string  `json:"ingested_urls"`
	Format       string    `json:"format"`
}

// ExportService renders conversation history for download.
type ExportService struct{}

func NewExportService() *ExportService {
	return &ExportService{}
}

// BuildExport assembles the export payload from a session snapshot.
func (es *ExportService) BuildExport(stats models.SessionStats, turns []models.ConversationTurn, format string) *HistoryExport {
	return &HistoryExport{
		ExportInfo: ExportInfo{
			SessionID:    stats.SessionID,
			ExportDate:   time.Now(),
			TotalTurns:   len(turns),
			IngestedURLs: stats.IngestedURLs,
			Format:       format,
		},
		Turns: turns,
	}
}

// StreamExport writes the export directly to the HTTP response as an
// attachment.
func (es *ExportService) StreamExport(ctx *gin.Context, data *HistoryExport, format string) error {
	switch format {
	case "json":
		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}

		ctx.Header("Content-Disposition", "attachment; filename=conversation_export.json")
		ctx.Header("Content-Length", strconv.Itoa(len(jsonData)))
		ctx.Data(http.StatusOK, "application/json", jsonData)

	case "xlsx":
		buf, err := es.buildWorkbook(data)
		if err != nil {
			return err
		}

		ctx.Header("Content-Disposition", "attachment; filename=conversation_export.xlsx")
		ctx.Header("Content-Length", strconv.Itoa(buf.Len()))
		ctx.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())

	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	return nil
}

func (es *ExportService) buildWorkbook(data *HistoryExport) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Conversation"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"#", "Question", "Answer", "Cited Chunks", "Timestamp"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for i, turn := range data.Turns {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), i+1)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), turn.Question)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), turn.Answer)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), strings.Join(turn.CitedChunkIDs, ", "))
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), turn.Timestamp.Format("2006-01-02 15:04:05"))
	}

	f.SetColWidth(sheetName, "B", "C", 60)
	f.SetColWidth(sheetName, "D", "E", 25)

	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	summaryData := [][]interface{}{
		{"Session ID", data.ExportInfo.SessionID},
		{"Export Date", data.ExportInfo.ExportDate.Format("2006-01-02 15:04:05")},
		{"Total Turns", data.ExportInfo.TotalTurns},
		{"Ingested URLs", strings.Join(data.ExportInfo.IngestedURLs, ", ")},
	}
	for i, row := range summaryData {
		for j, cell := range row {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheet, cellRef, cell)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return &buf, nil
}
