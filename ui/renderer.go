package ui

import (
	"fmt"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"snake-dqn/game"
)

const (
	borderPadding = 10
)

var (
	headColor  = rl.Color{R: 80, G: 220, B: 100, A: 255}
	bodyColor  = rl.Color{R: 40, G: 160, B: 60, A: 255}
	fruitColor = rl.Red
)

type Renderer struct {
	cellSize     int32
	screenWidth  int32
	screenHeight int32
	graphHeight  int32
	graphWidth   int32
	gameWidth    int32
	gameHeight   int32
	statsPanel   int32
	offsetX      int32
	offsetY      int32
}

func NewRenderer() *Renderer {
	r := &Renderer{}
	r.UpdateDimensions()
	return r
}

func (r *Renderer) UpdateDimensions() {
	r.screenWidth = int32(rl.GetScreenWidth())
	r.screenHeight = int32(rl.GetScreenHeight())
	r.statsPanel = r.screenWidth / 4
	r.gameWidth = r.screenWidth - r.statsPanel
	r.gameHeight = r.screenHeight
	r.graphWidth = r.statsPanel - 20
	r.graphHeight = r.screenHeight / 4
}

func min(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// Draw renders one frame of the session.
func (r *Renderer) Draw(s *Session) {
	r.UpdateDimensions()
	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	state := s.Game.State()
	fontSize := min(r.screenHeight/30, r.statsPanel/12)
	lineHeight := fontSize + fontSize/2

	availableWidth := r.gameWidth - borderPadding*2
	availableHeight := r.gameHeight - borderPadding*2
	r.cellSize = min(availableWidth/int32(state.Width), availableHeight/int32(state.Height))
	gridWidth := r.cellSize * int32(state.Width)
	gridHeight := r.cellSize * int32(state.Height)
	r.offsetX = borderPadding + (availableWidth-gridWidth)/2
	r.offsetY = (r.screenHeight - gridHeight) / 2

	rl.DrawRectangle(r.offsetX-1, r.offsetY-1, gridWidth+2, gridHeight+2, rl.DarkGray)
	for x := 0; x < state.Width; x++ {
		for y := 0; y < state.Height; y++ {
			rl.DrawRectangleLines(r.cellX(x), r.cellY(y), r.cellSize, r.cellSize, rl.Gray)
		}
	}

	for _, f := range state.Fruits {
		rl.DrawRectangle(r.cellX(f.X), r.cellY(f.Y), r.cellSize, r.cellSize, fruitColor)
	}
	for i := len(state.Snake) - 1; i >= 0; i-- {
		p := state.Snake[i]
		color := bodyColor
		if i == 0 {
			color = headColor
		}
		rl.DrawRectangle(r.cellX(p.X), r.cellY(p.Y), r.cellSize, r.cellSize, color)
	}
	if head, ok := state.Head(); ok {
		r.drawDirection(head, s.Game.Direction())
	}

	r.drawStatsPanel(s, fontSize, lineHeight)
	rl.EndDrawing()
}

func (r *Renderer) cellX(x int) int32 { return r.offsetX + int32(x)*r.cellSize }
func (r *Renderer) cellY(y int) int32 { return r.offsetY + int32(y)*r.cellSize }

// drawDirection marks the head with a triangle pointing where the snake moves.
func (r *Renderer) drawDirection(head game.Point, d game.Direction) {
	x := float32(r.cellX(head.X))
	y := float32(r.cellY(head.Y))
	c := float32(r.cellSize)
	h := c / 2
	var a, b, tip rl.Vector2
	switch d {
	case game.Right:
		tip, a, b = rl.Vector2{X: x + c, Y: y + h}, rl.Vector2{X: x + h, Y: y}, rl.Vector2{X: x + h, Y: y + c}
	case game.Left:
		tip, a, b = rl.Vector2{X: x, Y: y + h}, rl.Vector2{X: x + h, Y: y + c}, rl.Vector2{X: x + h, Y: y}
	case game.Down:
		tip, a, b = rl.Vector2{X: x + h, Y: y + c}, rl.Vector2{X: x + c, Y: y + h}, rl.Vector2{X: x, Y: y + h}
	default:
		tip, a, b = rl.Vector2{X: x + h, Y: y}, rl.Vector2{X: x, Y: y + h}, rl.Vector2{X: x + c, Y: y + h}
	}
	rl.DrawTriangle(tip, a, b, rl.Yellow)
}

func (r *Renderer) drawStatsPanel(s *Session, fontSize, lineHeight int32) {
	statsX := r.gameWidth + 5
	statsY := int32(10)
	rl.DrawRectangle(statsX-5, 0, r.statsPanel+5, r.screenHeight, rl.DarkGray)

	lines := []string{
		fmt.Sprintf("Episode: %d", s.Episodes+1),
		fmt.Sprintf("Reward: %.1f", s.Reward),
		fmt.Sprintf("Fruits: %d", s.Fruits),
		fmt.Sprintf("Action: %s", s.LastAction),
		fmt.Sprintf("Best: %d", s.BestFruits),
		fmt.Sprintf("Avg: %.2f", s.AverageFruits()),
	}
	for _, l := range lines {
		rl.DrawText(l, statsX, statsY, fontSize, rl.White)
		statsY += lineHeight
	}

	r.drawScoreGraph(s, statsX, fontSize)
}

// drawScoreGraph plots fruits eaten per finished episode.
func (r *Renderer) drawScoreGraph(s *Session, graphX, fontSize int32) {
	graphY := r.screenHeight - r.graphHeight - fontSize*2
	rl.DrawRectangleLines(graphX, graphY, r.graphWidth, r.graphHeight, rl.White)
	rl.DrawText("Fruits per episode", graphX, graphY-fontSize-5, fontSize, rl.White)

	duration := time.Since(s.StartTime)
	timeText := fmt.Sprintf("%02d:%02d:%02d", int(duration.Hours()), int(duration.Minutes())%60, int(duration.Seconds())%60)
	rl.DrawText(timeText, graphX, r.screenHeight-fontSize-5, fontSize, rl.White)

	scores := s.Scores()
	if len(scores) < 2 {
		return
	}
	maxScore := 1
	for _, v := range scores {
		if v > maxScore {
			maxScore = v
		}
	}
	px := func(j int) int32 { return graphX + int32(float32(r.graphWidth)*float32(j)/float32(maxScores)) }
	py := func(v float64) int32 {
		return graphY + r.graphHeight - int32(float32(r.graphHeight)*float32(v)/float32(maxScore))
	}
	for j := 1; j < len(scores); j++ {
		rl.DrawLine(px(j-1), py(float64(scores[j-1])), px(j), py(float64(scores[j])), headColor)
	}
	avgY := py(s.AverageFruits())
	for x := graphX; x < graphX+r.graphWidth; x += 5 {
		rl.DrawLine(x, avgY, x+2, avgY, rl.Yellow)
	}
}
