package metrics

const (
	SamplerReqsSentH = "The total number of NTP requests sent to peers"
	SamplerReqsSentN = "ntpcheck_sampler_reqs_sent"

	SamplerPktsReceivedH = "The total number of datagrams received from peers"
	SamplerPktsReceivedN = "ntpcheck_sampler_pkts_received"

	SamplerPktsMalformedH = "The total number of datagrams dropped as malformed"
	SamplerPktsMalformedN = "ntpcheck_sampler_pkts_malformed"

	SamplerPeersUnreachableH = "The total number of resolved peer addresses that could not be associated"
	SamplerPeersUnreachableN = "ntpcheck_sampler_peers_unreachable"
)
