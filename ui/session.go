// Package ui shows a trained network playing the game in a raylib window.
package ui

import (
	"time"

	"snake-dqn/game"
	"snake-dqn/qlearning"
)

// maxScores is the number of finished episodes kept for the score graph.
const maxScores = 200

// Session plays the game greedily with a loaded network.
type Session struct {
	Game *game.Game
	Net  qlearning.Approximator

	Episodes   int
	Reward     float64
	Fruits     int
	BestFruits int
	LastAction game.Action
	StartTime  time.Time

	scores []int
}

func NewSession(g *game.Game, net qlearning.Approximator) *Session {
	return &Session{Game: g, Net: net, LastAction: game.Straight, StartTime: time.Now()}
}

// Step advances the game by one greedy move. A finished episode is recorded
// and the game is reset.
func (s *Session) Step() error {
	action, err := qlearning.GreedyAction(s.Net, s.Game.State())
	if err != nil {
		return err
	}
	s.LastAction = action
	res := s.Game.Step(action)
	s.Reward += res.Reward
	if res.FruitEaten {
		s.Fruits++
	}
	if res.Done {
		s.finishEpisode()
	}
	return nil
}

func (s *Session) finishEpisode() {
	s.Episodes++
	s.scores = append(s.scores, s.Fruits)
	if len(s.scores) > maxScores {
		s.scores = s.scores[len(s.scores)-maxScores:]
	}
	if s.Fruits > s.BestFruits {
		s.BestFruits = s.Fruits
	}
	s.Reward = 0
	s.Fruits = 0
	s.Game.Reset()
}

// Scores returns fruits eaten in the most recent finished episodes, oldest
// first.
func (s *Session) Scores() []int {
	out := make([]int, len(s.scores))
	copy(out, s.scores)
	return out
}

func (s *Session) AverageFruits() float64 {
	if len(s.scores) == 0 {
		return 0
	}
	sum := 0
	for _, v := range s.scores {
		sum += v
	}
	return float64(sum) / float64(len(s.scores))
}
