package strategy_test

import (
	"testing"

	"mixpress/internal/strategy"
)

func TestDetermineTable(t *testing.T) {
	cases := []struct {
		name          string
		codec         string
		sourceBitrate int
		targetBitrate int
		lossy         bool
		noLossyMode   bool
		embedArt      bool
		want          strategy.Strategy
	}{
		{
			name:  "no lossy mode mp3 with art",
			codec: "mp3", sourceBitrate: 192, targetBitrate: 256,
			lossy: true, noLossyMode: true, embedArt: true,
			want: strategy.Strategy{Kind: strategy.Copy},
		},
		{
			name:  "no lossy mode mp3 without art",
			codec: "mp3", sourceBitrate: 192, targetBitrate: 256,
			lossy: true, noLossyMode: true, embedArt: false,
			want: strategy.Strategy{Kind: strategy.CopyWithoutArt},
		},
		{
			name:  "no lossy mode aac keeps source bitrate",
			codec: "aac", sourceBitrate: 192, targetBitrate: 256,
			lossy: true, noLossyMode: true, embedArt: true,
			want: strategy.Strategy{Kind: strategy.ConvertAtSourceBitrate, BitrateKbps: 192},
		},
		{
			name:  "no lossy mode flac converts at target",
			codec: "flac", sourceBitrate: 1411, targetBitrate: 256,
			lossy: false, noLossyMode: true, embedArt: true,
			want: strategy.Strategy{Kind: strategy.ConvertAtTargetBitrate, BitrateKbps: 256},
		},
		{
			name:  "mp3 at target copies",
			codec: "mp3", sourceBitrate: 192, targetBitrate: 256,
			lossy: true, embedArt: true,
			want: strategy.Strategy{Kind: strategy.Copy},
		},
		{
			name:  "mp3 within threshold copies",
			codec: "mp3", sourceBitrate: 275, targetBitrate: 256,
			lossy: true, embedArt: false,
			want: strategy.Strategy{Kind: strategy.CopyWithoutArt},
		},
		{
			name:  "mp3 exactly at threshold copies",
			codec: "mp3", sourceBitrate: 276, targetBitrate: 256,
			lossy: true, embedArt: true,
			want: strategy.Strategy{Kind: strategy.Copy},
		},
		{
			name:  "mp3 above threshold converts at source",
			codec: "mp3", sourceBitrate: 320, targetBitrate: 256,
			lossy: true, embedArt: true,
			want: strategy.Strategy{Kind: strategy.ConvertAtSourceBitrate, BitrateKbps: 320},
		},
		{
			name:  "ogg converts at source regardless of target",
			codec: "ogg", sourceBitrate: 250, targetBitrate: 128,
			lossy: true, embedArt: true,
			want: strategy.Strategy{Kind: strategy.ConvertAtSourceBitrate, BitrateKbps: 250},
		},
		{
			name:  "opus above mp3 max is capped at 320",
			codec: "opus", sourceBitrate: 510, targetBitrate: 256,
			lossy: true, embedArt: true,
			want: strategy.Strategy{Kind: strategy.ConvertAtSourceBitrate, BitrateKbps: 320},
		},
		{
			name:  "flac converts at target",
			codec: "flac", sourceBitrate: 1411, targetBitrate: 256,
			lossy: false, embedArt: true,
			want: strategy.Strategy{Kind: strategy.ConvertAtTargetBitrate, BitrateKbps: 256},
		},
		{
			name:  "wav converts at target",
			codec: "wav", sourceBitrate: 1411, targetBitrate: 192,
			lossy: false, embedArt: false,
			want: strategy.Strategy{Kind: strategy.ConvertAtTargetBitrate, BitrateKbps: 192},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := strategy.Determine(tc.codec, tc.sourceBitrate, tc.targetBitrate, tc.lossy, tc.noLossyMode, tc.embedArt)
			if got != tc.want {
				t.Fatalf("Determine(%q, %d, %d, %v, %v, %v) = %+v, want %+v",
					tc.codec, tc.sourceBitrate, tc.targetBitrate, tc.lossy, tc.noLossyMode, tc.embedArt, got, tc.want)
			}
		})
	}
}

func TestMP3NearTargetNeverConverts(t *testing.T) {
	for target := 64; target <= 320; target += 32 {
		for source := 32; source <= target+20; source += 16 {
			got := strategy.Determine("mp3", source, target, true, false, true)
			if !got.IsCopy() {
				t.Fatalf("mp3 source=%d target=%d: expected copy, got %+v", source, target, got)
			}
		}
	}
}

func TestLossyNonMP3IndependentOfTarget(t *testing.T) {
	for _, codec := range []string{"aac", "ogg", "opus", "m4a"} {
		for _, target := range []int{64, 128, 256, 320} {
			got := strategy.Determine(codec, 280, target, true, false, true)
			if got.Kind != strategy.ConvertAtSourceBitrate || got.BitrateKbps != 280 {
				t.Fatalf("%s target=%d: got %+v, want source bitrate 280", codec, target, got)
			}
		}
	}
}
