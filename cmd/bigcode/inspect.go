package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"bigcode/internal/store"
)

func inspectCmd() *cli.Command {
	var (
		modelPath string
		filter    string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the tensors in a safetensors checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Usage:       "path to a .safetensors checkpoint",
				Required:    true,
				Destination: &modelPath,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only show tensors whose name contains this substring",
				Destination: &filter,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := store.OpenSafetensors(modelPath)
			if err != nil {
				return err
			}

			infos := s.Tensors()
			names := make([]string, 0, len(infos))
			for name := range infos {
				if filter != "" && !strings.Contains(name, filter) {
					continue
				}
				names = append(names, name)
			}
			sort.Strings(names)

			var total int64
			for _, name := range names {
				info := infos[name]
				elems := int64(1)
				for _, d := range info.Shape {
					elems *= int64(d)
				}
				total += elems
				fmt.Printf("%-48s %-5s %v\n", name, info.DType, info.Shape)
			}
			fmt.Printf("\n%d tensors, %d parameters\n", len(names), total)
			return nil
		},
	}
}
