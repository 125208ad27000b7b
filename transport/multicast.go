package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/mapleleafu/typerace/protocol"
)

func resolveGroup(group string, port int) (*net.UDPAddr, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("%q is not an IPv4 multicast address", group)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// interfaceByName returns nil (system default) for an empty name.
func interfaceByName(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("network interface %q: %w", name, err)
	}
	return iface, nil
}

// MulticastSender pushes server events to the multicast group.
type MulticastSender struct {
	conn  *net.UDPConn
	group *net.UDPAddr
}

func DialMulticast(group string, port int, ifaceName string) (*MulticastSender, error) {
	gaddr, err := resolveGroup(group, port)
	if err != nil {
		return nil, err
	}
	iface, err := interfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("open multicast socket: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)
	if iface != nil {
		if err := pc.SetMulticastInterface(iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set multicast interface: %w", err)
		}
	}
	if err := pc.SetMulticastTTL(1); err != nil {
		log.Printf("Could not set multicast TTL: %v", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		log.Printf("Could not enable multicast loopback: %v", err)
	}
	return &MulticastSender{conn: conn, group: gaddr}, nil
}

func (m *MulticastSender) Broadcast(payload []byte) error {
	if _, err := m.conn.WriteToUDP(payload, m.group); err != nil {
		return fmt.Errorf("multicast to %s: %w", m.group, err)
	}
	return nil
}

func (m *MulticastSender) Close() error {
	return m.conn.Close()
}

// MulticastListener receives server events. Close may be called from any
// goroutine; it leaves the group and unblocks Listen.
type MulticastListener struct {
	conn      net.PacketConn
	pc        *ipv4.PacketConn
	group     *net.UDPAddr
	iface     *net.Interface
	closeOnce sync.Once
	closeErr  error
}

func ListenMulticast(group string, port int, ifaceName string) (*MulticastListener, error) {
	gaddr, err := resolveGroup(group, port)
	if err != nil {
		return nil, err
	}
	iface, err := interfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen multicast port %d: %w", port, err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: gaddr.IP}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join group %s: %w", gaddr.IP, err)
	}
	log.Printf("Listening to multicast messages on %s", gaddr)
	return &MulticastListener{conn: conn, pc: pc, group: gaddr, iface: iface}, nil
}

// Listen blocks until the listener is closed or ctx is cancelled.
func (l *MulticastListener) Listen(ctx context.Context, handle func([]byte)) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	buf := make([]byte, protocol.MaxPayload)
	for {
		n, _, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Error during multicast listening: %v", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		handle(payload)
	}
}

func (l *MulticastListener) Close() error {
	l.closeOnce.Do(func() {
		if err := l.pc.LeaveGroup(l.iface, &net.UDPAddr{IP: l.group.IP}); err != nil {
			log.Printf("Error leaving multicast group %s: %v", l.group.IP, err)
		}
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}
