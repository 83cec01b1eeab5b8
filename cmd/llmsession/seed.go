// Fabstir LLM Session - end-to-end encrypted inference session transport
// Copyright (C) 2026 Fabstir
//
// This file is part of the Fabstir LLM session library.
//
// This library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this library. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/fabstir/llm-session-go/pkg/errors"
	"github.com/fabstir/llm-session-go/pkg/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <owner-address> <chain-id>",
	Short: "Derive the deterministic storage seed phrase for an owner",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return errors.Newf(errors.CodeInvalidInput, "not an address: %q", args[0])
		}
		chainID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return errors.Wrap(errors.CodeInvalidInput, "chain id must be an integer", err)
		}
		phrase, err := seed.PhraseForOwner(common.HexToAddress(args[0]), chainID)
		if err != nil {
			return err
		}
		fmt.Println(phrase)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
