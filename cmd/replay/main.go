// Command replay streams a recorded sequence of fixes (one JSON input
// message per line, as accepted by cmd/errorengine) to a TCP address at a
// configurable speed multiplier, reproducing the original inter-fix
// timing. Adapted from the teacher's PCAP replay tool: the binary
// PCAP/PHDR2 framing and UDP destination have no equivalent here (this
// spec has no packet-capture input), but the timestamp-paced send loop is
// kept verbatim in spirit.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"
)

func main() {
	inputPath := flag.String("in", "", "Input file of newline-delimited fix JSON messages")
	destAddr := flag.String("dest", "127.0.0.1:9001", "Destination TCP address")
	speed := flag.Float64("speed", 1.0, "Replay speed multiplier (0 for max speed)")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("--in required")
	}

	conn, err := net.Dial("tcp", *destAddr)
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	f, err := os.Open(*inputPath)
	if err != nil {
		log.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	var firstTs float64
	var startReal time.Time
	count := 0

	log.Printf("Replaying %s to %s...", *inputPath, *destAddr)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var peek struct {
			Timestamp float64 `json:"timestamp"`
		}
		if err := json.Unmarshal(line, &peek); err != nil {
			log.Printf("skipping malformed line: %v", err)
			continue
		}

		ts := peek.Timestamp / 1000.0 // ms since epoch -> seconds
		if firstTs == 0 {
			firstTs = ts
			startReal = time.Now()
		} else if *speed > 0 {
			targetDelay := time.Duration((ts - firstTs) / *speed * float64(time.Second))
			elapsed := time.Since(startReal)
			if targetDelay > elapsed {
				time.Sleep(targetDelay - elapsed)
			}
		}

		framed := make([]byte, len(line)+1)
		copy(framed, line)
		framed[len(line)] = '\n'
		if _, err := conn.Write(framed); err != nil {
			log.Printf("write error: %v", err)
		}

		count++
		if count%1000 == 0 {
			fmt.Printf("\rSent %d fixes...", count)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	fmt.Printf("\nDone. Sent %d fixes.\n", count)
}
