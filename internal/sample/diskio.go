package sample

import (
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/net"
)

func readDiskCounters() (readBytes, writeBytes uint64, err error) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0, err
	}
	for _, c := range counters {
		readBytes += c.ReadBytes
		writeBytes += c.WriteBytes
	}
	return readBytes, writeBytes, nil
}

func readNetCounters() (recvBytes, sentBytes uint64, err error) {
	counters, err := net.IOCounters(false)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range counters {
		recvBytes += c.BytesRecv
		sentBytes += c.BytesSent
	}
	return recvBytes, sentBytes, nil
}
