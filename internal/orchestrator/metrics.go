package orchestrator

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricTurns = promauto.NewCounter(prometheus.CounterOpts{
        Name: "orch_turns_total",
        Help: "Turns handed to the reply pipeline",
    })

    metricEmptyTurns = promauto.NewCounter(prometheus.CounterOpts{
        Name: "orch_empty_turns_total",
        Help: "Turns aborted because no transcript arrived",
    })

    metricTurnFailures = promauto.NewCounter(prometheus.CounterOpts{
        Name: "orch_turn_failures_total",
        Help: "Turns aborted by a collaborator failure",
    })

    metricBargeIn = promauto.NewCounter(prometheus.CounterOpts{
        Name: "orch_barge_in_events_total",
        Help: "Total barge-in events while thinking or speaking",
    })

    metricHeartbeats = promauto.NewCounter(prometheus.CounterOpts{
        Name: "orch_heartbeat_turn_ends_total",
        Help: "Turns ended by the silence sweeper",
    })

    metricDuplicateTurnEnds = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "orch_ignored_turn_ends_total",
        Help: "Turn end triggers ignored because the session was not listening",
    }, []string{"source"})

    metricStaleDrops = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "orch_stale_drops_total",
        Help: "Results dropped because their generation was superseded",
    }, []string{"kind"})

    metricSTTReopens = promauto.NewCounter(prometheus.CounterOpts{
        Name: "orch_stt_reopens_total",
        Help: "Transcriber streams reopened after closing",
    })

    metricSearches = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "orch_searches_total",
        Help: "Search decisions that ran or were vetoed by the gate",
    }, []string{"outcome"})

    metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "orch_state_transitions_total",
        Help: "Session state transitions",
    }, []string{"from", "to"})

    metricTurnSTTMS = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "orch_turn_stt_ms",
        Help:    "Turn end to finalized transcript (ms)",
        Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
    })

    metricTurnTTFTMS = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "orch_turn_llm_ttft_ms",
        Help:    "Reply request to first token (ms)",
        Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
    })

    metricTurnLLMMS = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "orch_turn_llm_total_ms",
        Help:    "Finalized transcript to complete reply, including decision and search (ms)",
        Buckets: prometheus.ExponentialBuckets(100, 1.6, 12),
    })

    metricTurnTTSMS = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "orch_tts_first_audio_ms",
        Help:    "Complete reply to first synthesized chunk (ms)",
        Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
    })

    metricTurnE2EMS = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "orch_turn_e2e_ms",
        Help:    "Turn end to first synthesized chunk (ms)",
        Buckets: prometheus.ExponentialBuckets(100, 1.6, 12),
    })
)
