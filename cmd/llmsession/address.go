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

	"github.com/spf13/cobra"

	"github.com/fabstir/llm-session-go/pkg/crypto"
)

var addressCmd = &cobra.Command{
	Use:   "address <compressed-pubkey-hex>",
	Short: "Derive the EIP-55 checksummed address of a public key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := crypto.HexToBytesExact(args[0], crypto.CompressedPubKeySize)
		if err != nil {
			return err
		}
		pub, err := crypto.ParseCompressedPubKey(raw)
		if err != nil {
			return err
		}
		fmt.Println(crypto.AddressFromPubKey(pub).Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
