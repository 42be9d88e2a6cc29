// Command client is a small interactive console for the courtbook server.
// It translates line commands into protocol frames and pretty-prints the
// responses. Meant for poking at a running server, not for production use.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"courtbook/internal/protocol"
)

const usage = `commands:
  login <username> <password>
  register <username> <email> <password> <first_name>
  sports | cities
  centres <city_id>
  terrains <sport_id> <centre_id>
  check <terrain_id> <date> <start> <end>      e.g. check 7 2024-06-01 10:00 11:00
  book <terrain_id> <date> <start> <end>
  mine | subs
  subscribe <subscription_id>
  cancel <reservation_id>
  stats
  block <terrain_id> [reason...]               admin
  terrains-all | reservations-all              admin
  quit`

func main() {
	addr := flag.String("addr", "localhost:5555", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer conn.Close()
	enc := json.NewEncoder(conn)
	// Responses decode into generic maps so payloads of any shape print nicely.
	dec := json.NewDecoder(conn)

	fmt.Println("connected to", *addr)
	fmt.Println(usage)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		req, err := buildRequest(fields)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		if req == nil {
			fmt.Println(usage)
			continue
		}

		if err := enc.Encode(req); err != nil {
			fmt.Fprintln(os.Stderr, "send:", err)
			return
		}
		var resp map[string]any
		if err := dec.Decode(&resp); err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			return
		}
		printResponse(resp)

		if req.Command == protocol.CmdDisconnect {
			return
		}
	}
}

func buildRequest(fields []string) (*protocol.Request, error) {
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "login":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: login <username> <password>")
		}
		return marshal(protocol.CmdLogin, protocol.LoginRequest{Username: args[0], Password: args[1]})
	case "register":
		if len(args) != 4 {
			return nil, fmt.Errorf("usage: register <username> <email> <password> <first_name>")
		}
		return marshal(protocol.CmdRegister, protocol.RegisterRequest{
			Username: args[0], Email: args[1], Password: args[2], FirstName: args[3],
		})
	case "sports":
		return &protocol.Request{Command: protocol.CmdGetSports}, nil
	case "cities":
		return &protocol.Request{Command: protocol.CmdGetCities}, nil
	case "centres":
		id, err := parseID(args, 1)
		if err != nil {
			return nil, err
		}
		return marshal(protocol.CmdGetCentres, protocol.CentresRequest{CityID: id[0]})
	case "terrains":
		ids, err := parseID(args, 2)
		if err != nil {
			return nil, err
		}
		return marshal(protocol.CmdGetTerrains, protocol.TerrainsRequest{SportID: ids[0], CentreID: ids[1]})
	case "check", "book":
		if len(args) != 4 {
			return nil, fmt.Errorf("usage: %s <terrain_id> <date> <start> <end>", cmd)
		}
		terrainID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad terrain id: %q", args[0])
		}
		slot := protocol.SlotRequest{TerrainID: terrainID, Date: args[1], Start: args[2], End: args[3]}
		if cmd == "check" {
			return marshal(protocol.CmdCheckAvailability, slot)
		}
		return marshal(protocol.CmdCreateReservation, slot)
	case "mine":
		return &protocol.Request{Command: protocol.CmdGetMyReservations}, nil
	case "subs":
		return &protocol.Request{Command: protocol.CmdGetSubscriptions}, nil
	case "subscribe":
		id, err := parseID(args, 1)
		if err != nil {
			return nil, err
		}
		return marshal(protocol.CmdSubscribe, protocol.SubscribeRequest{SubscriptionID: id[0]})
	case "cancel":
		id, err := parseID(args, 1)
		if err != nil {
			return nil, err
		}
		return marshal(protocol.CmdCancelReservation, protocol.CancelRequest{ReservationID: id[0]})
	case "stats":
		return &protocol.Request{Command: protocol.CmdGetStats}, nil
	case "block":
		if len(args) < 1 {
			return nil, fmt.Errorf("usage: block <terrain_id> [reason...]")
		}
		terrainID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad terrain id: %q", args[0])
		}
		return marshal(protocol.CmdBlockTerrain, protocol.BlockTerrainRequest{
			TerrainID: terrainID, Reason: strings.Join(args[1:], " "),
		})
	case "terrains-all":
		return &protocol.Request{Command: protocol.CmdGetAllTerrains}, nil
	case "reservations-all":
		return &protocol.Request{Command: protocol.CmdGetAllReservations}, nil
	case "quit", "exit":
		return &protocol.Request{Command: protocol.CmdDisconnect}, nil
	case "help":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func marshal(command string, payload any) (*protocol.Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &protocol.Request{Command: command, Payload: raw}, nil
}

func parseID(args []string, n int) ([]int64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d numeric argument(s)", n)
	}
	ids := make([]int64, n)
	for i, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id: %q", arg)
		}
		ids[i] = id
	}
	return ids, nil
}

func printResponse(resp map[string]any) {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Println(resp)
		return
	}
	fmt.Println(string(out))
}
