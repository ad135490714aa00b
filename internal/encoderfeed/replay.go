package encoderfeed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/odometry/internal/monitoring"
)

// ReadFixtures reads a newline separated fixture file. Lines that carry no
// sample are skipped; any other malformed line fails the whole read.
func ReadFixtures(r io.Reader) ([]Frame, error) {
	var frames []Frame
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		f, err := ParseLine(scanner.Text())
		if errors.Is(err, ErrSkipLine) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fixture line %d: %w", lineNo, err)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return frames, nil
}

// ReadPCAP replays encoder lines carried as UDP payloads in a classic pcap
// capture. Only datagrams to or from udpPort are considered; a port of 0
// accepts every UDP datagram. Frames without a board timestamp are stamped
// from the capture time relative to the first packet.
func ReadPCAP(r io.Reader, udpPort int) ([]Frame, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}

	var (
		frames      []Frame
		first       time.Time
		packetCount int
		badLines    int
	)
	for {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return frames, fmt.Errorf("read packet %d: %w", packetCount+1, err)
		}
		packetCount++
		if first.IsZero() {
			first = ci.Timestamp
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if udpPort != 0 && int(udp.DstPort) != udpPort && int(udp.SrcPort) != udpPort {
			continue
		}

		stamp := uint16(ci.Timestamp.Sub(first).Milliseconds())
		for _, line := range strings.Split(string(udp.Payload), "\n") {
			f, err := ParseLine(line)
			if errors.Is(err, ErrSkipLine) {
				continue
			}
			if err != nil {
				badLines++
				monitoring.Debugf("pcap packet %d: %v", packetCount, err)
				continue
			}
			if !f.HasTimestamp {
				f = f.WithTimestamp(stamp)
			}
			frames = append(frames, f)
		}
	}

	if badLines > 0 {
		monitoring.Logf("pcap replay: %d packets, %d frames, %d unparseable lines", packetCount, len(frames), badLines)
	}
	return frames, nil
}
