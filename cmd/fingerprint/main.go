package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"vk-quest-bot/internal/adapters/imagematch"
	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/config"
)

func main() {
	var gameFile string
	flag.StringVar(&gameFile, "game", "", "Path to game YAML; prints the nearest piece for every image")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal().Msg("fingerprint: usage: fingerprint [-game game.yaml] image...")
	}

	var game *domain.Game
	if gameFile != "" {
		g, err := config.LoadGame(gameFile, imagematch.Spec)
		if err != nil {
			log.Fatal().Err(err).Msg("fingerprint: failed to load game")
		}
		game = &g
	}

	hasher := imagematch.New()
	for _, path := range flag.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("fingerprint: failed to read image")
		}
		fp, err := hasher.Hash(raw)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("fingerprint: failed to hash image")
		}
		if game == nil {
			fmt.Printf("%s\t%s\n", fp, path)
			continue
		}
		stage, piece, dist := nearest(*game, fp)
		fmt.Printf("%s\t%s\tstage %d piece %s distance %d\n", fp, path, stage+1, piece, dist)
	}
}

// nearest ищет картинку игры с минимальным расстоянием до fp.
func nearest(game domain.Game, fp domain.Fingerprint) (int, string, int) {
	bestStage, bestPiece, best := -1, "", -1
	for i, st := range game.Stages {
		for _, p := range st.Pieces {
			d := fp.Distance(p.Fingerprint)
			if d >= 0 && (best < 0 || d < best) {
				bestStage, bestPiece, best = i, p.ID, d
			}
		}
	}
	return bestStage, bestPiece, best
}
